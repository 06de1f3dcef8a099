package models

import "time"

// Kind 遥测数据来源类型
type Kind string

const (
	KindMeter   Kind = "meter"   // 充电桩电表 (AC 侧)
	KindVehicle Kind = "vehicle" // 车辆 BMS (DC 侧)
)

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	return k == KindMeter || k == KindVehicle
}

// Reading 单条遥测读数
type Reading interface {
	Kind() Kind
	EntityID() string
	RecordedAt() time.Time
}

// MeterReading 电表读数，写入后不可变
type MeterReading struct {
	MeterID       string    `json:"meterId" db:"meter_id"`
	KwhConsumedAc float64   `json:"kwhConsumedAc" db:"kwh_consumed_ac"` // kWh
	Voltage       float64   `json:"voltage" db:"voltage"`               // V
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

func (m *MeterReading) Kind() Kind            { return KindMeter }
func (m *MeterReading) EntityID() string      { return m.MeterID }
func (m *MeterReading) RecordedAt() time.Time { return m.Timestamp }

// VehicleReading 车辆读数，写入后不可变
type VehicleReading struct {
	VehicleID      string    `json:"vehicleId" db:"vehicle_id"`
	Soc            float64   `json:"soc" db:"soc"`                            // %
	KwhDeliveredDc float64   `json:"kwhDeliveredDc" db:"kwh_delivered_dc"` // kWh
	BatteryTemp    float64   `json:"batteryTemp" db:"battery_temp"`         // °C
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

func (v *VehicleReading) Kind() Kind            { return KindVehicle }
func (v *VehicleReading) EntityID() string      { return v.VehicleID }
func (v *VehicleReading) RecordedAt() time.Time { return v.Timestamp }

// MeterStatus 电表当前状态 (每个 meter_id 一行)
// 按写入提交顺序覆盖，不比较读数时间戳，迟到的旧读数同样会覆盖
type MeterStatus struct {
	MeterReading
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// VehicleStatus 车辆当前状态 (每个 vehicle_id 一行)
type VehicleStatus struct {
	VehicleReading
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// VehicleMeterAssociation 车辆与电表的关联
type VehicleMeterAssociation struct {
	VehicleID string    `json:"vehicleId" db:"vehicle_id"`
	MeterID   string    `json:"meterId" db:"meter_id"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
