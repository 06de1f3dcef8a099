package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Pool 连接池接口，*pgxpool.Pool 满足该接口
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB 数据库连接池封装
type DB struct {
	Pool Pool
}

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string, pc PoolConfig) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	applyPoolConfig(config, pc)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// applyPoolConfig 零值 PoolConfig 使用默认 10/2
// 指定 MaxConns 后 MinConns 原样生效 (包括 0)，超过 MaxConns 时截断
func applyPoolConfig(config *pgxpool.Config, pc PoolConfig) {
	if pc.MaxConns <= 0 {
		config.MaxConns = 10
		config.MinConns = 2
		return
	}
	config.MaxConns = pc.MaxConns
	config.MinConns = min(max(pc.MinConns, 0), pc.MaxConns)
}

// NewWithPool 使用已有连接池
func NewWithPool(pool Pool) *DB {
	return &DB{Pool: pool}
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping 检查数据库连通性
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate 创建表结构（幂等）
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateMeterTelemetry,
		migrationCreateVehicleTelemetry,
		migrationCreateMeterStatus,
		migrationCreateVehicleStatus,
		migrationCreateAssociations,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 历史表只追加
const migrationCreateMeterTelemetry = `
CREATE TABLE IF NOT EXISTS meter_telemetry (
    id BIGSERIAL PRIMARY KEY,
    meter_id VARCHAR(255) NOT NULL,
    kwh_consumed_ac DOUBLE PRECISION NOT NULL,
    voltage DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_meter_telemetry_meter_ts ON meter_telemetry(meter_id, timestamp);
`

const migrationCreateVehicleTelemetry = `
CREATE TABLE IF NOT EXISTS vehicle_telemetry (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id VARCHAR(255) NOT NULL,
    soc DOUBLE PRECISION NOT NULL,
    kwh_delivered_dc DOUBLE PRECISION NOT NULL,
    battery_temp DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicle_telemetry_vehicle_ts ON vehicle_telemetry(vehicle_id, timestamp);
`

// 状态表每个实体一行
const migrationCreateMeterStatus = `
CREATE TABLE IF NOT EXISTS meter_status (
    meter_id VARCHAR(255) PRIMARY KEY,
    kwh_consumed_ac DOUBLE PRECISION NOT NULL,
    voltage DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migrationCreateVehicleStatus = `
CREATE TABLE IF NOT EXISTS vehicle_status (
    vehicle_id VARCHAR(255) PRIMARY KEY,
    soc DOUBLE PRECISION NOT NULL,
    kwh_delivered_dc DOUBLE PRECISION NOT NULL,
    battery_temp DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migrationCreateAssociations = `
CREATE TABLE IF NOT EXISTS vehicle_meter_associations (
    vehicle_id VARCHAR(255) PRIMARY KEY,
    meter_id VARCHAR(255) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicle_meter_associations_meter_id ON vehicle_meter_associations(meter_id);
`
