package position

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrDuplicatePosition 同一标的已有未平仓位时再次开仓。
	ErrDuplicatePosition = errors.New("duplicate open position")
	// ErrInvalidPosition 数量或价格非法。
	ErrInvalidPosition = errors.New("invalid position parameters")
)

// Manager 维护持仓台账：每个标的至多一个未平仓位，
// 平仓记录进入只追加的历史列表。
type Manager struct {
	mu     sync.RWMutex
	open   map[string]*Position
	closed []Position
}

// NewManager 创建持仓管理器。
func NewManager() *Manager {
	return &Manager{
		open: make(map[string]*Position),
	}
}

// AddPosition 开仓。同一标的已有持仓时返回 ErrDuplicatePosition，
// 不做静默覆盖，也不做合并。
func (m *Manager) AddPosition(symbol string, qty, entryPrice float64) (Position, error) {
	if symbol == "" || qty <= 0 || entryPrice <= 0 {
		return Position{}, fmt.Errorf("%w: symbol=%q qty=%.4f price=%.4f",
			ErrInvalidPosition, symbol, qty, entryPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.open[symbol]; exists {
		return Position{}, fmt.Errorf("%w: %s", ErrDuplicatePosition, symbol)
	}

	p := &Position{
		Symbol:       symbol,
		Quantity:     qty,
		EntryPrice:   entryPrice,
		EntryTime:    time.Now(),
		CurrentPrice: entryPrice,
		Status:       StatusOpen,
	}
	m.open[symbol] = p
	return *p, nil
}

// UpdatePosition 按最新市价重估持仓（mark-to-market）。
// 无持仓时为 no-op。
func (m *Manager) UpdatePosition(symbol string, price float64) {
	if price <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	p.UnrealizedPnLPct = p.UnrealizedPnL / (p.EntryPrice * p.Quantity)
}

// ClosePosition 平仓：从持仓表移除并追加到历史，返回平仓快照。
// 无持仓时返回 nil（幂等，重复平仓不是错误）。
func (m *Manager) ClosePosition(symbol string, exitPrice float64) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		return nil
	}
	delete(m.open, symbol)

	p.Status = StatusClosed
	p.ExitPrice = exitPrice
	p.ExitTime = time.Now()
	p.CurrentPrice = exitPrice
	p.RealizedPnL = (exitPrice - p.EntryPrice) * p.Quantity
	p.UnrealizedPnL = 0
	p.UnrealizedPnLPct = 0

	m.closed = append(m.closed, *p)
	snapshot := *p
	return &snapshot
}

// Remove 回滚开仓（订单被撤销/拒绝时），不产生平仓记录。
func (m *Manager) Remove(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[symbol]; !ok {
		return false
	}
	delete(m.open, symbol)
	return true
}

// Get 返回未平仓位快照。
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Has 判断是否存在未平仓位。
func (m *Manager) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.open[symbol]
	return ok
}

// OpenPositions 返回所有未平仓位的快照。
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// ClosedPositions 返回平仓历史的快照。
func (m *Manager) ClosedPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, len(m.closed))
	copy(out, m.closed)
	return out
}

// OpenCount 当前持仓数。
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

// ClosedCount 历史平仓数。
func (m *Manager) ClosedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.closed)
}

// PortfolioValue 组合价值 = 现金 + Σ(市价×数量)。
func (m *Manager) PortfolioValue(cash float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value := cash
	for _, p := range m.open {
		value += p.CurrentPrice * p.Quantity
	}
	return value
}

// Heat 组合总敞口 = Σ|数量×市价|。
func (m *Manager) Heat() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	heat := 0.0
	for _, p := range m.open {
		heat += p.Notional()
	}
	return heat
}

// TotalUnrealizedPnL 所有未平仓位的浮动盈亏之和。
func (m *Manager) TotalUnrealizedPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.open {
		total += p.UnrealizedPnL
	}
	return total
}
