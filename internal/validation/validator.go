package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/langchou/energyingest/internal/models"
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// String 输出 "meterId is required" 形式的错误描述
func (e FieldError) String() string {
	return e.Field + " " + e.Reason
}

// Result 校验结果，Errors 为空时 Valid 为 true
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Messages 错误描述列表 (按检查顺序)
func (r Result) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.String())
	}
	return msgs
}

func newResult(errs ...[]FieldError) Result {
	var all []FieldError
	for _, phase := range errs {
		all = append(all, phase...)
	}
	return Result{Valid: len(all) == 0, Errors: all}
}

type fieldType int

const (
	stringField fieldType = iota
	numberField
	timeField
)

// bounds 闭区间 [min, max]
type bounds struct {
	min, max float64
	reason   string
}

type field struct {
	name  string
	typ   fieldType
	bound *bounds
}

var meterSchema = []field{
	{name: "meterId", typ: stringField},
	{name: "kwhConsumedAc", typ: numberField, bound: &bounds{min: 0, max: math.Inf(1), reason: "must be a non-negative number"}},
	{name: "voltage", typ: numberField, bound: &bounds{min: 100, max: 300, reason: "must be between 100 and 300 volts"}},
	{name: "timestamp", typ: timeField},
}

var vehicleSchema = []field{
	{name: "vehicleId", typ: stringField},
	{name: "soc", typ: numberField, bound: &bounds{min: 0, max: 100, reason: "must be between 0 and 100 percent"}},
	{name: "kwhDeliveredDc", typ: numberField, bound: &bounds{min: 0, max: math.Inf(1), reason: "must be a non-negative number"}},
	{name: "batteryTemp", typ: numberField, bound: &bounds{min: -40, max: 80, reason: "must be between -40 and 80 degrees Celsius"}},
	{name: "timestamp", typ: timeField},
}

func schemaFor(kind models.Kind) ([]field, bool) {
	switch kind {
	case models.KindMeter:
		return meterSchema, true
	case models.KindVehicle:
		return vehicleSchema, true
	}
	return nil, false
}

// check 对单个字段执行一类检查，失败时返回 (错误, true)
type check func(f field, v any, present bool) (FieldError, bool)

func run(schema []field, data map[string]any, c check) []FieldError {
	var out []FieldError
	for _, f := range schema {
		v, ok := data[f.name]
		if e, failed := c(f, v, ok && v != nil); failed {
			out = append(out, e)
		}
	}
	return out
}

// Validate 校验一条遥测数据，不会因输入畸形而 panic
// 所有错误按 存在性 → 类型 → 范围 → 时间戳 的顺序全部收集
func Validate(kind models.Kind, raw any) Result {
	schema, ok := schemaFor(kind)
	if !ok {
		return newResult([]FieldError{{Field: "kind", Reason: fmt.Sprintf("must be %q or %q", models.KindMeter, models.KindVehicle)}})
	}
	data, ok := raw.(map[string]any)
	if !ok || data == nil {
		return newResult([]FieldError{{Field: "Data", Reason: "must be an object"}})
	}

	return newResult(
		run(schema, data, checkPresence),
		run(schema, data, checkType),
		run(schema, data, checkRange),
		run(schema, data, checkTimestamp),
	)
}

func checkPresence(f field, v any, present bool) (FieldError, bool) {
	if !present {
		return FieldError{Field: f.name, Reason: "is required"}, true
	}
	// 空字符串只对字符串类字段算缺失，数值字段交给类型检查
	if s, ok := v.(string); ok && s == "" && f.typ != numberField {
		return FieldError{Field: f.name, Reason: "is required"}, true
	}
	return FieldError{}, false
}

func checkType(f field, v any, present bool) (FieldError, bool) {
	if !present {
		return FieldError{}, false
	}
	switch f.typ {
	case stringField:
		s, ok := v.(string)
		if !ok {
			return FieldError{Field: f.name, Reason: "must be a string"}, true
		}
		if s != "" && strings.TrimSpace(s) == "" {
			return FieldError{Field: f.name, Reason: "must be a non-empty string"}, true
		}
	case numberField:
		if _, ok := toFloat(v); !ok {
			return FieldError{Field: f.name, Reason: "must be a number"}, true
		}
	}
	return FieldError{}, false
}

func checkRange(f field, v any, present bool) (FieldError, bool) {
	if !present || f.bound == nil {
		return FieldError{}, false
	}
	n, ok := toFloat(v)
	if !ok {
		return FieldError{}, false
	}
	if n < f.bound.min || n > f.bound.max {
		return FieldError{Field: f.name, Reason: f.bound.reason}, true
	}
	return FieldError{}, false
}

func checkTimestamp(f field, v any, present bool) (FieldError, bool) {
	if !present || f.typ != timeField {
		return FieldError{}, false
	}
	// 空字符串已报告为缺失
	if s, ok := v.(string); ok && s == "" {
		return FieldError{}, false
	}
	if _, ok := toTime(v); !ok {
		return FieldError{Field: f.name, Reason: "must be a valid ISO8601 date string"}, true
	}
	return FieldError{}, false
}

// toFloat 接受 JSON 解码出的数值类型，拒绝 NaN 与 ±Inf
func toFloat(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case int32:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		t, err := iso8601.ParseString(x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return x, !x.IsZero()
	}
	return time.Time{}, false
}

// ParseMeter 校验并转换为电表读数，校验失败时读数为 nil
func ParseMeter(raw any) (*models.MeterReading, Result) {
	res := Validate(models.KindMeter, raw)
	if !res.Valid {
		return nil, res
	}
	data := raw.(map[string]any)
	kwh, _ := toFloat(data["kwhConsumedAc"])
	voltage, _ := toFloat(data["voltage"])
	ts, _ := toTime(data["timestamp"])
	return &models.MeterReading{
		MeterID:       data["meterId"].(string),
		KwhConsumedAc: kwh,
		Voltage:       voltage,
		Timestamp:     ts.UTC(),
	}, res
}

// ParseVehicle 校验并转换为车辆读数，校验失败时读数为 nil
func ParseVehicle(raw any) (*models.VehicleReading, Result) {
	res := Validate(models.KindVehicle, raw)
	if !res.Valid {
		return nil, res
	}
	data := raw.(map[string]any)
	soc, _ := toFloat(data["soc"])
	kwh, _ := toFloat(data["kwhDeliveredDc"])
	temp, _ := toFloat(data["batteryTemp"])
	ts, _ := toTime(data["timestamp"])
	return &models.VehicleReading{
		VehicleID:      data["vehicleId"].(string),
		Soc:            soc,
		KwhDeliveredDc: kwh,
		BatteryTemp:    temp,
		Timestamp:      ts.UTC(),
	}, res
}
