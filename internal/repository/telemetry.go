package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/energyingest/internal/models"
)

// TelemetryRepository 遥测数据仓库
// 每条读数在同一个事务内写入历史表并更新状态表
type TelemetryRepository struct {
	db *DB
}

// NewTelemetryRepository 创建遥测仓库
func NewTelemetryRepository(db *DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

const insertMeterTelemetry = `
	INSERT INTO meter_telemetry (meter_id, kwh_consumed_ac, voltage, timestamp)
	VALUES ($1, $2, $3, $4)
`

const upsertMeterStatus = `
	INSERT INTO meter_status (meter_id, kwh_consumed_ac, voltage, timestamp, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (meter_id) DO UPDATE SET
		kwh_consumed_ac = EXCLUDED.kwh_consumed_ac,
		voltage = EXCLUDED.voltage,
		timestamp = EXCLUDED.timestamp,
		updated_at = NOW()
	RETURNING updated_at
`

const insertVehicleTelemetry = `
	INSERT INTO vehicle_telemetry (vehicle_id, soc, kwh_delivered_dc, battery_temp, timestamp)
	VALUES ($1, $2, $3, $4, $5)
`

const upsertVehicleStatus = `
	INSERT INTO vehicle_status (vehicle_id, soc, kwh_delivered_dc, battery_temp, timestamp, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (vehicle_id) DO UPDATE SET
		soc = EXCLUDED.soc,
		kwh_delivered_dc = EXCLUDED.kwh_delivered_dc,
		battery_temp = EXCLUDED.battery_temp,
		timestamp = EXCLUDED.timestamp,
		updated_at = NOW()
	RETURNING updated_at
`

// SaveMeterReading 双写电表读数，返回写入后的状态行
func (r *TelemetryRepository) SaveMeterReading(ctx context.Context, m *models.MeterReading) (*models.MeterStatus, error) {
	updatedAt, err := r.dualWrite(ctx, models.KindMeter, insertMeterTelemetry, upsertMeterStatus,
		m.MeterID,
		m.KwhConsumedAc,
		m.Voltage,
		m.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &models.MeterStatus{MeterReading: *m, UpdatedAt: updatedAt}, nil
}

// SaveVehicleReading 双写车辆读数，返回写入后的状态行
func (r *TelemetryRepository) SaveVehicleReading(ctx context.Context, v *models.VehicleReading) (*models.VehicleStatus, error) {
	updatedAt, err := r.dualWrite(ctx, models.KindVehicle, insertVehicleTelemetry, upsertVehicleStatus,
		v.VehicleID,
		v.Soc,
		v.KwhDeliveredDc,
		v.BatteryTemp,
		v.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &models.VehicleStatus{VehicleReading: *v, UpdatedAt: updatedAt}, nil
}

// Save 按读数类型分派双写，返回对应的状态行 (*MeterStatus 或 *VehicleStatus)
func (r *TelemetryRepository) Save(ctx context.Context, reading models.Reading) (any, error) {
	switch rd := reading.(type) {
	case *models.MeterReading:
		return r.SaveMeterReading(ctx, rd)
	case *models.VehicleReading:
		return r.SaveVehicleReading(ctx, rd)
	default:
		return nil, fmt.Errorf("save telemetry: unsupported reading type %T", reading)
	}
}

// dualWrite 历史追加与状态 upsert 在同一事务内完成，任一步失败整体回滚
func (r *TelemetryRepository) dualWrite(ctx context.Context, kind models.Kind, historySQL, statusSQL string, args ...any) (time.Time, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin %s dual-write: %w", kind, err)
	}
	// Commit 之后 Rollback 为空操作；连接在事务结束时归还连接池
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, historySQL, args...); err != nil {
		return time.Time{}, fmt.Errorf("insert %s telemetry: %w", kind, err)
	}

	var updatedAt time.Time
	if err := tx.QueryRow(ctx, statusSQL, args...).Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("upsert %s status: %w", kind, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fmt.Errorf("commit %s dual-write: %w", kind, err)
	}
	return updatedAt, nil
}

// GetMeterStatus 获取电表当前状态
func (r *TelemetryRepository) GetMeterStatus(ctx context.Context, meterID string) (*models.MeterStatus, error) {
	query := `
		SELECT meter_id, kwh_consumed_ac, voltage, timestamp, updated_at
		FROM meter_status WHERE meter_id = $1
	`
	s := &models.MeterStatus{}
	err := r.db.Pool.QueryRow(ctx, query, meterID).Scan(
		&s.MeterID,
		&s.KwhConsumedAc,
		&s.Voltage,
		&s.Timestamp,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meter status: %w", err)
	}
	return s, nil
}

// GetVehicleStatus 获取车辆当前状态
func (r *TelemetryRepository) GetVehicleStatus(ctx context.Context, vehicleID string) (*models.VehicleStatus, error) {
	query := `
		SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, timestamp, updated_at
		FROM vehicle_status WHERE vehicle_id = $1
	`
	s := &models.VehicleStatus{}
	err := r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(
		&s.VehicleID,
		&s.Soc,
		&s.KwhDeliveredDc,
		&s.BatteryTemp,
		&s.Timestamp,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle status: %w", err)
	}
	return s, nil
}

// ListMeterReadings 获取时间窗口 [start, end] 内的电表读数，按时间升序
func (r *TelemetryRepository) ListMeterReadings(ctx context.Context, meterID string, start, end time.Time) ([]*models.MeterReading, error) {
	query := `
		SELECT meter_id, kwh_consumed_ac, voltage, timestamp
		FROM meter_telemetry
		WHERE meter_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, meterID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list meter telemetry: %w", err)
	}
	defer rows.Close()

	var readings []*models.MeterReading
	for rows.Next() {
		m := &models.MeterReading{}
		if err := rows.Scan(&m.MeterID, &m.KwhConsumedAc, &m.Voltage, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan meter telemetry: %w", err)
		}
		readings = append(readings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meter telemetry: %w", err)
	}

	return readings, nil
}

// ListVehicleReadings 获取时间窗口 [start, end] 内的车辆读数，按时间升序
func (r *TelemetryRepository) ListVehicleReadings(ctx context.Context, vehicleID string, start, end time.Time) ([]*models.VehicleReading, error) {
	query := `
		SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, timestamp
		FROM vehicle_telemetry
		WHERE vehicle_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list vehicle telemetry: %w", err)
	}
	defer rows.Close()

	var readings []*models.VehicleReading
	for rows.Next() {
		v := &models.VehicleReading{}
		if err := rows.Scan(&v.VehicleID, &v.Soc, &v.KwhDeliveredDc, &v.BatteryTemp, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan vehicle telemetry: %w", err)
		}
		readings = append(readings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicle telemetry: %w", err)
	}

	return readings, nil
}
