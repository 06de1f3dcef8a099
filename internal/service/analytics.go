package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/energyingest/internal/metrics"
	"github.com/langchou/energyingest/internal/models"
)

const (
	// AnalyticsWindow 汇总时间窗口
	AnalyticsWindow = 24 * time.Hour
	// FaultThreshold 能效比严格低于该值视为故障
	FaultThreshold = 0.85
)

// ErrNoVehicleData 窗口内没有车辆读数
var ErrNoVehicleData = errors.New("no vehicle data in window")

// TelemetryReader 历史区间读取
type TelemetryReader interface {
	ListVehicleReadings(ctx context.Context, vehicleID string, start, end time.Time) ([]*models.VehicleReading, error)
	ListMeterReadings(ctx context.Context, meterID string, start, end time.Time) ([]*models.MeterReading, error)
}

// MeterDirectory 车辆到电表的关联查询
type MeterDirectory interface {
	MeterIDsForVehicle(ctx context.Context, vehicleID string) ([]string, error)
}

// SummaryObserver 接收每次计算出的汇总
type SummaryObserver interface {
	Observe(ctx context.Context, summary *models.PerformanceSummary)
}

// AnalyticsService 能效分析服务
type AnalyticsService struct {
	logger    *zap.Logger
	readings  TelemetryReader
	directory MeterDirectory
	metrics   *metrics.Metrics
	observers []SummaryObserver
}

// NewAnalyticsService 创建分析服务
func NewAnalyticsService(logger *zap.Logger, readings TelemetryReader, directory MeterDirectory, m *metrics.Metrics) *AnalyticsService {
	return &AnalyticsService{
		logger:    logger,
		readings:  readings,
		directory: directory,
		metrics:   m,
	}
}

// AddObserver 注册汇总观察者
func (s *AnalyticsService) AddObserver(o SummaryObserver) {
	s.observers = append(s.observers, o)
}

// Summarize 计算车辆在 [now-24h, now] 内的能效汇总
func (s *AnalyticsService) Summarize(ctx context.Context, vehicleID string, now time.Time) (*models.PerformanceSummary, error) {
	end := now.UTC()
	start := end.Add(-AnalyticsWindow)

	summary, err := s.summarize(ctx, vehicleID, start, end)
	switch {
	case errors.Is(err, ErrNoVehicleData):
		s.metrics.Summary(metrics.SummaryNotFound)
		return nil, err
	case err != nil:
		s.metrics.Summary(metrics.SummaryError)
		return nil, err
	}
	s.metrics.Summary(metrics.SummaryOK)

	for _, o := range s.observers {
		o.Observe(ctx, summary)
	}
	return summary, nil
}

func (s *AnalyticsService) summarize(ctx context.Context, vehicleID string, start, end time.Time) (*models.PerformanceSummary, error) {
	vehicles, err := s.readings.ListVehicleReadings(ctx, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("read vehicle telemetry: %w", err)
	}
	if len(vehicles) == 0 {
		return nil, ErrNoVehicleData
	}

	meterIDs, err := s.directory.MeterIDsForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("lookup associated meters: %w", err)
	}

	meters, err := s.readMeters(ctx, meterIDs, start, end)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Computing performance summary",
		zap.String("vehicle_id", vehicleID),
		zap.Int("vehicle_readings", len(vehicles)),
		zap.Int("meters", len(meterIDs)),
		zap.Int("meter_readings", len(meters)),
	)

	return ComputeSummary(vehicleID, start, end, vehicles, meters)
}

// readMeters 并发读取多个电表的区间数据，任一失败取消其余读取
func (s *AnalyticsService) readMeters(ctx context.Context, meterIDs []string, start, end time.Time) ([]*models.MeterReading, error) {
	results := make([][]*models.MeterReading, len(meterIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range meterIDs {
		i, id := i, id
		g.Go(func() error {
			readings, err := s.readings.ListMeterReadings(gctx, id, start, end)
			if err != nil {
				return fmt.Errorf("read meter %s telemetry: %w", id, err)
			}
			results[i] = readings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*models.MeterReading
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// ComputeSummary 纯计算：累加 AC/DC、平均电池温度、能效比与故障判定
func ComputeSummary(vehicleID string, start, end time.Time, vehicles []*models.VehicleReading, meters []*models.MeterReading) (*models.PerformanceSummary, error) {
	if len(vehicles) == 0 {
		return nil, ErrNoVehicleData
	}

	var dc, temp float64
	for _, v := range vehicles {
		dc += v.KwhDeliveredDc
		temp += v.BatteryTemp
	}

	var ac float64
	for _, m := range meters {
		ac += m.KwhConsumedAc
	}

	summary := &models.PerformanceSummary{
		VehicleID:        vehicleID,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalAcConsumed:  ac,
		TotalDcDelivered: dc,
		AvgBatteryTemp:   temp / float64(len(vehicles)),
	}

	// 没有交流用电时能效比无意义，也不判定故障
	// 交流用电极小或累加溢出时比值不是有限数，同样视为没有能效比
	if ac > 0 {
		ratio := dc / ac
		if !math.IsInf(ratio, 0) && !math.IsNaN(ratio) {
			summary.EfficiencyRatio = &ratio
			summary.FaultDetected = ratio < FaultThreshold
		}
	}

	return summary, nil
}
