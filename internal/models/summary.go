package models

import (
	"math"
	"time"
)

// isoMillis 与 JavaScript toISOString 一致的输出格式
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// PerformanceSummary 24 小时能效汇总 (未取整的原始计算值)
type PerformanceSummary struct {
	VehicleID        string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	TotalAcConsumed  float64
	TotalDcDelivered float64
	EfficiencyRatio  *float64 // AC 消耗为 0 时为 nil
	AvgBatteryTemp   float64
	FaultDetected    bool
}

// PerformanceReport 对外输出的汇总
type PerformanceReport struct {
	VehicleID        string   `json:"vehicleId"`
	PeriodStart      string   `json:"periodStart"`
	PeriodEnd        string   `json:"periodEnd"`
	TotalAcConsumed  float64  `json:"totalAcConsumed"`
	TotalDcDelivered float64  `json:"totalDcDelivered"`
	EfficiencyRatio  *float64 `json:"efficiencyRatio"`
	AvgBatteryTemp   float64  `json:"avgBatteryTemp"`
	FaultDetected    bool     `json:"faultDetected"`
}

// Rounded 生成展示用的取整结果，不修改原始值
func (s *PerformanceSummary) Rounded() PerformanceReport {
	report := PerformanceReport{
		VehicleID:        s.VehicleID,
		PeriodStart:      s.PeriodStart.UTC().Format(isoMillis),
		PeriodEnd:        s.PeriodEnd.UTC().Format(isoMillis),
		TotalAcConsumed:  roundTo(s.TotalAcConsumed, 3),
		TotalDcDelivered: roundTo(s.TotalDcDelivered, 3),
		AvgBatteryTemp:   roundTo(s.AvgBatteryTemp, 2),
		FaultDetected:    s.FaultDetected,
	}
	if s.EfficiencyRatio != nil && !math.IsInf(*s.EfficiencyRatio, 0) && !math.IsNaN(*s.EfficiencyRatio) {
		ratio := roundTo(*s.EfficiencyRatio, 4)
		report.EfficiencyRatio = &ratio
	}
	return report
}

// roundTo 超过 1e15 的值已没有小数位可取整，原样返回以免 v*p 溢出
// 累加溢出得到的 ±Inf 收敛到最大有限值，保证结果可以 JSON 编码
func roundTo(v float64, places int) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 0):
		return math.Copysign(math.MaxFloat64, v)
	case math.Abs(v) > 1e15:
		return v
	}
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
