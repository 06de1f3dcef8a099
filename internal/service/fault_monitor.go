package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/metrics"
	"github.com/langchou/energyingest/internal/models"
	"github.com/langchou/energyingest/internal/state"
)

// AlertNotifier 接收车辆健康状态变化
type AlertNotifier interface {
	PublishFaultAlert(ctx context.Context, vehicleID string, alert any) error
}

// FaultAlert 健康状态变化通知
type FaultAlert struct {
	VehicleID       string    `json:"vehicleId"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	EfficiencyRatio *float64  `json:"efficiencyRatio"`
	At              time.Time `json:"at"`
}

type namedAlertNotifier struct {
	name     string
	notifier AlertNotifier
}

// FaultMonitor 根据每次汇总驱动车辆健康状态机
type FaultMonitor struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	manager   *state.Manager
	notifiers []namedAlertNotifier
}

// NewFaultMonitor 创建故障监控
func NewFaultMonitor(logger *zap.Logger, m *metrics.Metrics) *FaultMonitor {
	fm := &FaultMonitor{
		logger:  logger,
		metrics: m,
	}
	fm.manager = state.NewManager(fm.onStateChange)
	return fm
}

// AddNotifier 注册告警通知器
func (f *FaultMonitor) AddNotifier(name string, n AlertNotifier) {
	f.notifiers = append(f.notifiers, namedAlertNotifier{name: name, notifier: n})
}

// Observe 实现 SummaryObserver
func (f *FaultMonitor) Observe(ctx context.Context, s *models.PerformanceSummary) {
	event := state.EventReportHealthy
	switch {
	case s.EfficiencyRatio == nil:
		event = state.EventLoseBaseline
	case s.FaultDetected:
		event = state.EventReportFault
	}

	machine := f.manager.GetOrCreate(s.VehicleID)
	if _, err := machine.Trigger(ctx, event, s.EfficiencyRatio); err != nil {
		f.logger.Error("Failed to update vehicle health",
			zap.String("vehicle_id", s.VehicleID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// Health 获取车辆健康状态
func (f *FaultMonitor) Health(vehicleID string) (state.VehicleHealth, bool) {
	machine, ok := f.manager.Get(vehicleID)
	if !ok {
		return state.VehicleHealth{}, false
	}
	return machine.Health(), true
}

// AllHealth 获取所有已观察车辆的健康状态
func (f *FaultMonitor) AllHealth() map[string]state.VehicleHealth {
	return f.manager.AllHealth()
}

func (f *FaultMonitor) onStateChange(ctx context.Context, vehicleID, from, to string, health state.VehicleHealth) {
	f.metrics.HealthTransition(to)

	logFn := f.logger.Info
	if to == state.StateFaulted {
		logFn = f.logger.Warn
	}
	logFn("Vehicle health changed",
		zap.String("vehicle_id", vehicleID),
		zap.String("from", from),
		zap.String("to", to),
	)

	alert := FaultAlert{
		VehicleID:       vehicleID,
		From:            from,
		To:              to,
		EfficiencyRatio: health.EfficiencyRatio,
		At:              health.Since.UTC(),
	}
	for _, n := range f.notifiers {
		if err := n.notifier.PublishFaultAlert(ctx, vehicleID, alert); err != nil {
			f.metrics.NotifyError(n.name)
			f.logger.Warn("Failed to publish fault alert",
				zap.String("notifier", n.name),
				zap.String("vehicle_id", vehicleID),
				zap.Error(err),
			)
		}
	}
}
