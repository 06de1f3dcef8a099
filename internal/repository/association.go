package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/energyingest/internal/models"
)

// AssociationRepository 车辆与电表关联仓库
type AssociationRepository struct {
	db *DB
}

// NewAssociationRepository 创建关联仓库
func NewAssociationRepository(db *DB) *AssociationRepository {
	return &AssociationRepository{db: db}
}

// MeterIDsForVehicle 获取车辆关联的全部电表，没有关联时返回空切片
func (r *AssociationRepository) MeterIDsForVehicle(ctx context.Context, vehicleID string) ([]string, error) {
	query := `SELECT meter_id FROM vehicle_meter_associations WHERE vehicle_id = $1 ORDER BY meter_id`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list associated meters: %w", err)
	}
	defer rows.Close()

	meterIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan associated meter: %w", err)
		}
		meterIDs = append(meterIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate associated meters: %w", err)
	}

	return meterIDs, nil
}

// VehicleIDForMeter 获取电表关联的车辆
// 同一电表被多辆车绑定时返回最近一次绑定的车辆
func (r *AssociationRepository) VehicleIDForMeter(ctx context.Context, meterID string) (string, error) {
	query := `
		SELECT vehicle_id FROM vehicle_meter_associations
		WHERE meter_id = $1 ORDER BY updated_at DESC LIMIT 1
	`
	var vehicleID string
	err := r.db.Pool.QueryRow(ctx, query, meterID).Scan(&vehicleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get associated vehicle: %w", err)
	}
	return vehicleID, nil
}

// Upsert 创建或替换车辆的电表绑定 (每辆车以最后一次写入为准)
func (r *AssociationRepository) Upsert(ctx context.Context, a *models.VehicleMeterAssociation) error {
	query := `
		INSERT INTO vehicle_meter_associations (vehicle_id, meter_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (vehicle_id) DO UPDATE SET
			meter_id = EXCLUDED.meter_id,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query, a.VehicleID, a.MeterID).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert association: %w", err)
	}
	return nil
}
