package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/metrics"
	"github.com/langchou/energyingest/internal/models"
	"github.com/langchou/energyingest/internal/validation"
)

// TelemetryStore 遥测双写存储
type TelemetryStore interface {
	Save(ctx context.Context, reading models.Reading) (any, error)
}

// StatusNotifier 在双写提交后接收最新状态
type StatusNotifier interface {
	PublishStatus(ctx context.Context, kind, entityID string, status any) error
}

type namedNotifier struct {
	name     string
	notifier StatusNotifier
}

// TelemetryService 遥测写入服务
type TelemetryService struct {
	logger    *zap.Logger
	store     TelemetryStore
	metrics   *metrics.Metrics
	notifiers []namedNotifier
}

// NewTelemetryService 创建遥测写入服务
func NewTelemetryService(logger *zap.Logger, store TelemetryStore, m *metrics.Metrics) *TelemetryService {
	return &TelemetryService{
		logger:  logger,
		store:   store,
		metrics: m,
	}
}

// AddNotifier 注册提交后通知器 (WebSocket、Redis 等)
func (s *TelemetryService) AddNotifier(name string, n StatusNotifier) {
	s.notifiers = append(s.notifiers, namedNotifier{name: name, notifier: n})
}

// Ingest 校验并写入一条读数
// 校验失败时返回无效的 Result 且 error 为 nil；存储失败返回包装后的 error
func (s *TelemetryService) Ingest(ctx context.Context, kind models.Kind, raw any) (validation.Result, error) {
	reading, res := parse(kind, raw)
	if !res.Valid {
		s.metrics.Ingest(string(kind), metrics.OutcomeRejected)
		s.logger.Debug("Telemetry rejected",
			zap.String("kind", string(kind)),
			zap.Strings("errors", res.Messages()),
		)
		return res, nil
	}

	start := time.Now()
	status, err := s.store.Save(ctx, reading)
	s.metrics.DualWrite(string(kind), time.Since(start))
	if err != nil {
		s.metrics.Ingest(string(kind), metrics.OutcomeFailed)
		return res, fmt.Errorf("ingest %s telemetry: %w", kind, err)
	}
	s.metrics.Ingest(string(kind), metrics.OutcomeAccepted)

	// 状态已提交，通知失败只记录日志
	for _, n := range s.notifiers {
		if err := n.notifier.PublishStatus(ctx, string(kind), reading.EntityID(), status); err != nil {
			s.metrics.NotifyError(n.name)
			s.logger.Warn("Failed to publish status update",
				zap.String("notifier", n.name),
				zap.String("kind", string(kind)),
				zap.String("entity_id", reading.EntityID()),
				zap.Error(err),
			)
		}
	}

	return res, nil
}

// parse 校验失败时返回 nil 接口，避免带类型的 nil 指针
func parse(kind models.Kind, raw any) (models.Reading, validation.Result) {
	switch kind {
	case models.KindMeter:
		m, res := validation.ParseMeter(raw)
		if !res.Valid {
			return nil, res
		}
		return m, res
	case models.KindVehicle:
		v, res := validation.ParseVehicle(raw)
		if !res.Valid {
			return nil, res
		}
		return v, res
	}
	return nil, validation.Validate(kind, raw)
}
