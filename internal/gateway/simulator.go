package gateway

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidOrder 订单字段非法。
	ErrInvalidOrder = errors.New("invalid order")
	// ErrUnknownOrder 查询/操作的订单不存在。
	ErrUnknownOrder = errors.New("unknown order")
)

// Config 模拟撮合配置。延迟模拟券商/网络时延，可在测试中调短。
type Config struct {
	PartialFillDelay time.Duration // 提交到首次部分成交的延迟
	FillDelay        time.Duration // 部分成交到完全成交的追加延迟
	PartialFillRatio float64       // 首次部分成交占比，(0,1)
	SlippagePct      float64       // 部分成交相对委托价的滑点比例
	CommissionRate   float64       // 手续费率，按成交名义价值计
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PartialFillDelay: 100 * time.Millisecond,
		FillDelay:        200 * time.Millisecond,
		PartialFillRatio: 0.5,
		SlippagePct:      0.0005,
		CommissionRate:   0.0004,
	}
}

// Simulator 进程内模拟券商网关：持有订单记录，异步模拟
// 部分成交→完全成交的执行序列。本模拟器不会主动拒单，
// REJECTED 状态保留给真实券商对接。
type Simulator struct {
	cfg     Config
	machine *StateMachine

	mu     sync.RWMutex
	orders map[string]*Order

	execs  *ExecutionLog
	onExec func(ExecutionReport)

	wg sync.WaitGroup
}

// NewSimulator 创建模拟网关。
func NewSimulator(cfg Config) *Simulator {
	if cfg.PartialFillRatio <= 0 || cfg.PartialFillRatio >= 1 {
		cfg.PartialFillRatio = 0.5
	}
	return &Simulator{
		cfg:     cfg,
		machine: NewStateMachine(),
		orders:  make(map[string]*Order),
		execs:   NewExecutionLog(1000, 5*time.Minute),
	}
}

// SetExecutionCallback 注册成交/终态回报回调。
// 回调在网关锁外执行，可安全回调引擎。
func (s *Simulator) SetExecutionCallback(fn func(ExecutionReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExec = fn
}

// SendOrder 提交订单：分配 ID，转入 SUBMITTED，并启动异步成交模拟。
func (s *Simulator) SendOrder(o Order) (string, error) {
	if o.Symbol == "" || o.Quantity <= 0 || o.Price <= 0 {
		return "", fmt.Errorf("%w: symbol=%q qty=%.4f price=%.4f",
			ErrInvalidOrder, o.Symbol, o.Quantity, o.Price)
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return "", fmt.Errorf("%w: side=%q", ErrInvalidOrder, o.Side)
	}

	o.ID = uuid.NewString()
	o.Timestamp = time.Now()
	o.Status = StatusPending
	o.FilledQuantity = 0
	o.AverageFillPrice = 0
	o.Commission = 0

	s.mu.Lock()
	stored := o
	s.mustTransitionLocked(&stored, StatusSubmitted)
	s.orders[stored.ID] = &stored
	s.mu.Unlock()

	s.wg.Add(1)
	go s.simulateExecution(stored.ID)

	return stored.ID, nil
}

// CancelOrder 撤单：仅在非终态下成功；撤终态订单返回 false，不是错误。
func (s *Simulator) CancelOrder(orderID string) bool {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok || !s.machine.CanCancel(o.Status) {
		s.mu.Unlock()
		return false
	}
	s.mustTransitionLocked(o, StatusCancelled)
	report := s.reportLocked(o, 0, 0)
	s.mu.Unlock()

	s.emit(report)
	return true
}

// OrderStatus 只读查询订单状态。
func (s *Simulator) OrderStatus(orderID string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return "", false
	}
	return o.Status, true
}

// GetOrder 返回订单记录的快照。
func (s *Simulator) GetOrder(orderID string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Executions 返回成交记录快照。
func (s *Simulator) Executions() []Fill {
	return s.execs.Fills()
}

// ExecutionStats 返回成交统计。
func (s *Simulator) ExecutionStats() ExecutionStats {
	return s.execs.Stats()
}

// Wait 等待所有在途的成交模拟结束（测试与停机用）。
func (s *Simulator) Wait() {
	s.wg.Wait()
}

// simulateExecution 模拟一张订单的执行序列：
// 延迟后部分成交（带滑点），再延迟后补足剩余数量。
func (s *Simulator) simulateExecution(orderID string) {
	defer s.wg.Done()

	time.Sleep(s.cfg.PartialFillDelay)

	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != StatusSubmitted {
		// 已撤销或异常，终止模拟
		s.mu.Unlock()
		return
	}
	partialQty := o.Quantity * s.cfg.PartialFillRatio
	s.applyFillLocked(o, partialQty, s.slippedPrice(o), StatusPartial)
	report := s.reportLocked(o, partialQty, s.slippedPrice(o))
	s.mu.Unlock()
	s.emit(report)

	time.Sleep(s.cfg.FillDelay)

	s.mu.Lock()
	o, ok = s.orders[orderID]
	if !ok || o.Status != StatusPartial {
		s.mu.Unlock()
		return
	}
	remaining := o.Remaining()
	s.applyFillLocked(o, remaining, o.Price, StatusFilled)
	report = s.reportLocked(o, remaining, o.Price)
	s.mu.Unlock()
	s.emit(report)
}

// applyFillLocked 记账一次成交并推进状态。
// filled_quantity 超过 quantity 是程序错误，直接 panic。
func (s *Simulator) applyFillLocked(o *Order, qty, price float64, next Status) {
	const eps = 1e-9
	newFilled := o.FilledQuantity + qty
	if newFilled > o.Quantity+eps {
		panic(fmt.Sprintf("gateway: fill overflow on %s: filled %.6f > quantity %.6f",
			o.ID, newFilled, o.Quantity))
	}
	o.AverageFillPrice = (o.AverageFillPrice*o.FilledQuantity + price*qty) / newFilled
	o.FilledQuantity = newFilled
	o.Commission += s.cfg.CommissionRate * qty * price
	s.mustTransitionLocked(o, next)

	s.execs.RecordFill(o.ID, string(o.Side), price, qty)
}

// mustTransitionLocked 推进状态；模拟器内部产生非法转换属于逻辑故障。
func (s *Simulator) mustTransitionLocked(o *Order, to Status) {
	if err := s.machine.ValidateTransition(o.Status, to); err != nil {
		panic(fmt.Sprintf("gateway: %v (order %s)", err, o.ID))
	}
	o.Status = to
}

// slippedPrice 部分成交价：买单向上滑、卖单向下滑。
func (s *Simulator) slippedPrice(o *Order) float64 {
	if o.Side == SideBuy {
		return o.Price * (1 + s.cfg.SlippagePct)
	}
	return o.Price * (1 - s.cfg.SlippagePct)
}

func (s *Simulator) reportLocked(o *Order, fillQty, fillPrice float64) ExecutionReport {
	return ExecutionReport{
		OrderID:          o.ID,
		Symbol:           o.Symbol,
		Side:             o.Side,
		Status:           o.Status,
		FillQuantity:     fillQty,
		FillPrice:        fillPrice,
		FilledQuantity:   o.FilledQuantity,
		AverageFillPrice: o.AverageFillPrice,
		Commission:       o.Commission,
		Timestamp:        time.Now(),
	}
}

func (s *Simulator) emit(report ExecutionReport) {
	s.mu.RLock()
	fn := s.onExec
	s.mu.RUnlock()
	if fn != nil {
		fn(report)
	}
}
