package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 车辆能效健康状态
const (
	StateUnknown = "unknown" // 窗口内没有交流用电基线
	StateHealthy = "healthy"
	StateFaulted = "faulted"
)

// 事件常量
const (
	EventReportHealthy = "report_healthy"
	EventReportFault   = "report_fault"
	EventLoseBaseline  = "lose_baseline"
)

// VehicleHealth 车辆健康状态快照
type VehicleHealth struct {
	VehicleID       string    `json:"vehicleId"`
	CurrentState    string    `json:"state"`
	Since           time.Time `json:"since"`
	EfficiencyRatio *float64  `json:"efficiencyRatio"`
}

// ChangeFunc 状态变化回调
type ChangeFunc func(ctx context.Context, vehicleID, from, to string, health VehicleHealth)

// Machine 单车健康状态机
type Machine struct {
	mu        sync.RWMutex
	vehicleID string
	fsm       *fsm.FSM
	health    *VehicleHealth
	onChange  ChangeFunc
}

// NewMachine 创建状态机
func NewMachine(vehicleID string, onChange ChangeFunc) *Machine {
	m := &Machine{
		vehicleID: vehicleID,
		onChange:  onChange,
		health: &VehicleHealth{
			VehicleID:    vehicleID,
			CurrentState: StateUnknown,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		StateUnknown,
		fsm.Events{
			{Name: EventReportHealthy, Src: []string{StateUnknown, StateFaulted}, Dst: StateHealthy},
			{Name: EventReportFault, Src: []string{StateUnknown, StateHealthy}, Dst: StateFaulted},
			{Name: EventLoseBaseline, Src: []string{StateHealthy, StateFaulted}, Dst: StateUnknown},
		},
		fsm.Callbacks{},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Health 获取状态快照副本
func (m *Machine) Health() VehicleHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := *m.health
	h.CurrentState = m.fsm.Current()
	return h
}

// Trigger 触发事件，返回是否发生了状态转换
// 已处于目标状态时不报错
func (m *Machine) Trigger(ctx context.Context, event string, ratio *float64) (bool, error) {
	m.mu.Lock()

	m.health.EfficiencyRatio = ratio
	from := m.fsm.Current()
	if !m.fsm.Can(event) {
		m.mu.Unlock()
		return false, nil
	}

	if err := m.fsm.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		m.mu.Unlock()
		if errors.As(err, &noTransition) {
			return false, nil
		}
		return false, fmt.Errorf("trigger event %s: %w", event, err)
	}

	to := m.fsm.Current()
	m.health.CurrentState = to
	m.health.Since = time.Now()
	snapshot := *m.health
	m.mu.Unlock()

	// 回调在锁外执行，回调内可以再读取状态
	if m.onChange != nil {
		m.onChange(ctx, m.vehicleID, from, to, snapshot)
	}
	return true, nil
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange ChangeFunc
}

// NewManager 创建管理器
func NewManager(onChange ChangeFunc) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(vehicleID string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[vehicleID]; ok {
		return machine
	}

	machine := NewMachine(vehicleID, m.onChange)
	m.machines[vehicleID] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(vehicleID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[vehicleID]
	return machine, ok
}

// AllHealth 获取所有车辆的健康状态
func (m *Manager) AllHealth() map[string]VehicleHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]VehicleHealth, len(m.machines))
	for id, machine := range m.machines {
		out[id] = machine.Health()
	}
	return out
}
