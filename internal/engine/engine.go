package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-trader-go/infrastructure/alert"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/infrastructure/monitor"
	"live-trader-go/internal/gateway"
	"live-trader-go/internal/perf"
	"live-trader-go/internal/position"
	"live-trader-go/internal/risk"
)

// ProfitFactorCap 当存在盈利且亏损为零时，盈亏比返回的有限哨兵值。
const ProfitFactorCap = 1e9

var (
	// ErrNotTrading 引擎未处于交易状态
	ErrNotTrading = errors.New("engine is not trading")
	// ErrInsufficientCapital 可用资金不足
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrRiskRejected 风控前置检查拒绝
	ErrRiskRejected = errors.New("order rejected by risk checks")
)

// Config 引擎构造期配置，生命周期内不可变。
type Config struct {
	InitialCapital   float64 // 初始资金
	MaxPositionSize  float64 // 单仓位最大名义价值
	MaxPortfolioHeat float64 // 组合总敞口上限
	MaxDailyLoss     float64 // 单日最大亏损（正数）
	MaxDrawdown      float64 // 最大回撤阈值（负数）
	MaxRiskPerTrade  float64 // 单笔风险占比，默认 0.02
	WindowSize       int     // 绩效窗口容量，默认 100
}

// Components 引擎依赖组件
type Components struct {
	Positions    *position.Manager
	Gateway      *gateway.Simulator
	Risk         *risk.Manager
	Perf         *perf.Monitor
	Logger       *logger.Logger
	AlertManager *alert.Manager   // 可为空
	Monitor      *monitor.Monitor // 可为空
}

// PortfolioSummary 组合只读快照
type PortfolioSummary struct {
	Cash            float64
	PortfolioValue  float64
	UnrealizedPnL   float64
	TotalPnL        float64
	PositionHeat    float64
	OpenPositions   int
	ClosedPositions int
	TotalSignals    int
}

// PerformanceMetrics 绩效只读快照
type PerformanceMetrics struct {
	WinRate          float64
	ProfitFactor     float64
	RealizedSharpe   float64
	TradesExecuted   int
	SignalsGenerated int
}

// reservation 下单时预扣的资金，等待终态回报决定消耗或退还。
type reservation struct {
	symbol string
	amount float64
}

// Engine 实时交易引擎：接收信号、咨询风控测算、经网关下单、
// 维护仓位与资金。ProcessSignal 由引擎互斥锁串行化，
// {资金, 仓位, 信号历史, 风控停机标志} 仅在持锁时变更。
type Engine struct {
	config Config

	positions *position.Manager
	gateway   *gateway.Simulator
	risk      *risk.Manager
	perf      *perf.Monitor
	logger    *logger.Logger
	alertMgr  *alert.Manager
	monitor   *monitor.Monitor

	guard risk.Guard

	mu           sync.Mutex
	cash         float64
	peakValue    float64
	dailyPnL     float64
	realizedPnL  float64
	trading      bool
	riskHalted   bool
	signals      []LiveSignal
	reservations map[string]reservation
}

// New 创建交易引擎
func New(cfg Config, components Components) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}

	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = 0.02
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}

	e := &Engine{
		config:       cfg,
		positions:    components.Positions,
		gateway:      components.Gateway,
		risk:         components.Risk,
		perf:         components.Perf,
		logger:       components.Logger,
		alertMgr:     components.AlertManager,
		monitor:      components.Monitor,
		cash:         cfg.InitialCapital,
		peakValue:    cfg.InitialCapital,
		reservations: make(map[string]reservation),
	}

	// 风控前置闸门：限额检查既产出告警也阻断下单
	e.guard = risk.MultiGuard{Guards: []risk.Guard{
		risk.PositionLimitGuard{Risk: components.Risk},
		risk.PortfolioHeatGuard{Risk: components.Risk, Heat: components.Positions},
	}}

	components.Gateway.SetExecutionCallback(e.onExecution)

	return e, nil
}

// StartTrading 开启交易
func (e *Engine) StartTrading() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trading {
		return
	}
	e.trading = true

	e.logger.Info("交易引擎开启",
		zap.Float64("initial_capital", e.config.InitialCapital),
		zap.Float64("cash", e.cash))
}

// StopTrading 停止交易并以最后标记价强制平掉所有持仓。
func (e *Engine) StopTrading() {
	e.mu.Lock()
	if !e.trading {
		e.mu.Unlock()
		return
	}
	e.trading = false
	e.mu.Unlock()

	// 等待在途订单落地，成交回报需要引擎锁，不能持锁等待
	e.gateway.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, pos := range e.positions.OpenPositions() {
		e.closeAtLocked(pos.Symbol, pos.CurrentPrice, "liquidation")
	}
	e.publishTelemetryLocked()

	e.logger.Info("交易引擎停止，持仓已清算",
		zap.Float64("cash", e.cash),
		zap.Int("closed_positions", e.positions.ClosedCount()))
}

// IsTrading 查询交易状态
func (e *Engine) IsTrading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trading
}

// ProcessSignal 处理一条交易信号，成功提交时返回订单号。
// 业务性失败（未开盘、资金不足、重复持仓、风控拒绝）返回错误值，
// 绝不 panic；所有被处理的信号无论成败都进入历史。
func (e *Engine) ProcessSignal(sig LiveSignal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.trading {
		return "", ErrNotTrading
	}

	e.signals = append(e.signals, sig)
	e.perf.RecordSignal(sig.Symbol, sig.Direction.String(), sig.Confidence)
	if e.monitor != nil {
		e.monitor.RecordSignal(sig.Direction.String())
	}

	if err := sig.Validate(); err != nil {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "invalid", zap.Error(err))
		return "", err
	}

	switch sig.Direction {
	case DirectionBuy:
		return e.processBuyLocked(sig)
	case DirectionSell:
		return e.processSellLocked(sig)
	case DirectionHold:
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "hold")
		return "", nil
	default:
		// Validate 已拦截非法方向
		return "", fmt.Errorf("invalid signal direction: %q", sig.Direction)
	}
}

func (e *Engine) processBuyLocked(sig LiveSignal) (string, error) {
	if e.riskHalted {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "risk_halted")
		e.recordRiskReject()
		return "", fmt.Errorf("%w: engine risk-halted", ErrRiskRejected)
	}

	if e.positions.Has(sig.Symbol) {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "duplicate",
			zap.String("policy", "reject"))
		return "", fmt.Errorf("open position exists for %s: %w",
			sig.Symbol, position.ErrDuplicatePosition)
	}

	qty := sig.PositionSize
	if qty <= 0 {
		notional := e.risk.CalculatePositionSize(
			sig.Confidence, e.positions.PortfolioValue(e.cash), 0)
		qty = notional / sig.EntryPrice
	}
	if qty <= 0 {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "zero_size")
		return "", fmt.Errorf("%w: computed size is zero", ErrRiskRejected)
	}

	cost := qty * sig.EntryPrice
	if cost > e.cash {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "insufficient_capital",
			zap.Float64("cost", cost),
			zap.Float64("cash", e.cash))
		return "", fmt.Errorf("need %.2f, have %.2f: %w", cost, e.cash, ErrInsufficientCapital)
	}

	if err := e.guard.PreOrder(sig.Symbol, qty, sig.EntryPrice); err != nil {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "risk_rejected", zap.Error(err))
		e.recordRiskReject()
		return "", fmt.Errorf("%w: %s", ErrRiskRejected, err)
	}

	orderID, err := e.gateway.SendOrder(gateway.Order{
		Symbol:   sig.Symbol,
		Side:     gateway.SideBuy,
		Quantity: qty,
		Price:    sig.EntryPrice,
	})
	if err != nil {
		return "", fmt.Errorf("send order: %w", err)
	}

	// 资金在提交时预扣，终态为撤单/拒单时退还
	e.cash -= cost
	e.reservations[orderID] = reservation{symbol: sig.Symbol, amount: cost}

	if _, err := e.positions.AddPosition(sig.Symbol, qty, sig.EntryPrice); err != nil {
		// Has 检查之后不应再出现重复，视为逻辑错误
		panic(fmt.Sprintf("add position after duplicate check: %v", err))
	}

	if e.monitor != nil {
		e.monitor.RecordOrderSubmitted()
	}
	e.publishTelemetryLocked()

	e.logger.LogOrder("submitted", orderID, sig.Symbol,
		zap.String("side", string(gateway.SideBuy)),
		zap.Float64("quantity", qty),
		zap.Float64("price", sig.EntryPrice),
		zap.Float64("cash", e.cash))

	return orderID, nil
}

func (e *Engine) processSellLocked(sig LiveSignal) (string, error) {
	if !e.positions.Has(sig.Symbol) {
		e.logger.LogSignal(sig.Symbol, sig.Direction.String(), "no_position")
		return "", nil
	}

	pos, _ := e.positions.Get(sig.Symbol)

	orderID, err := e.gateway.SendOrder(gateway.Order{
		Symbol:   sig.Symbol,
		Side:     gateway.SideSell,
		Quantity: pos.Quantity,
		Price:    sig.EntryPrice,
	})
	if err != nil {
		return "", fmt.Errorf("send order: %w", err)
	}
	if e.monitor != nil {
		e.monitor.RecordOrderSubmitted()
	}

	e.closeAtLocked(sig.Symbol, sig.EntryPrice, "sell_signal")
	e.publishTelemetryLocked()

	return orderID, nil
}

// closeAtLocked 以给定价格平仓，入账已实现盈亏并记录绩效。
func (e *Engine) closeAtLocked(symbol string, exitPrice float64, reason string) {
	closed := e.positions.ClosePosition(symbol, exitPrice)
	if closed == nil {
		return
	}

	proceeds := closed.Quantity * exitPrice
	e.cash += proceeds
	e.realizedPnL += closed.RealizedPnL
	e.dailyPnL += closed.RealizedPnL

	e.perf.RecordTrade(symbol, closed.RealizedPnL, closed.HoldingDuration(time.Now()))
	if e.monitor != nil {
		e.monitor.RecordTrade()
	}

	e.logger.LogTrade("closed", symbol,
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", closed.RealizedPnL),
		zap.Float64("cash", e.cash))

	// 日亏损超限后停止接受新的买入
	if !e.risk.CheckDailyLoss(e.dailyPnL) {
		e.haltLocked("daily loss limit breached")
	}
}

// UpdateMarketPrices 接收行情并逐标的盯市，同时维护峰值并检查回撤。
func (e *Engine) UpdateMarketPrices(prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for symbol, price := range prices {
		e.positions.UpdatePosition(symbol, price)
	}

	value := e.positions.PortfolioValue(e.cash)
	if value > e.peakValue {
		e.peakValue = value
	} else if !e.risk.CheckDrawdown(value, e.peakValue) {
		e.haltLocked("drawdown limit breached")
	}

	e.publishTelemetryLocked()
}

// onExecution 网关回报回调，运行在撮合协程上。
// 撤单/拒单退还预扣资金并回滚仓位。
func (e *Engine) onExecution(report gateway.ExecutionReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch report.Status {
	case gateway.StatusPartial:
		if e.monitor != nil {
			e.monitor.RecordFill()
		}
	case gateway.StatusFilled:
		delete(e.reservations, report.OrderID)
		if e.monitor != nil {
			e.monitor.RecordFill()
			e.monitor.RecordOrderFilled()
		}
	case gateway.StatusCancelled:
		e.releaseReservationLocked(report.OrderID)
		if e.monitor != nil {
			e.monitor.RecordOrderCanceled()
		}
	case gateway.StatusRejected:
		e.releaseReservationLocked(report.OrderID)
		if e.monitor != nil {
			e.monitor.RecordOrderRejected()
		}
	}

	e.logger.LogOrder("execution", report.OrderID, report.Symbol,
		zap.String("status", string(report.Status)),
		zap.Float64("fill_quantity", report.FillQuantity),
		zap.Float64("fill_price", report.FillPrice),
		zap.Float64("avg_fill_price", report.AverageFillPrice))
}

// releaseReservationLocked 退还预扣资金并移除未成交的开仓记录。
func (e *Engine) releaseReservationLocked(orderID string) {
	res, ok := e.reservations[orderID]
	if !ok {
		return
	}
	delete(e.reservations, orderID)
	e.cash += res.amount
	e.positions.Remove(res.symbol)
	e.publishTelemetryLocked()

	e.logger.LogOrder("reservation_released", orderID, res.symbol,
		zap.Float64("refund", res.amount),
		zap.Float64("cash", e.cash))
}

// haltLocked 风控停机：停止接受新的买入，已有持仓保留。
func (e *Engine) haltLocked(reason string) {
	if e.riskHalted {
		return
	}
	e.riskHalted = true

	e.logger.LogRisk("halt", zap.String("reason", reason))
	if e.alertMgr != nil {
		e.alertMgr.SendAlert(alert.Alert{
			Level:     string(risk.LevelCritical),
			Message:   fmt.Sprintf("引擎风控停机: %s", reason),
			Timestamp: time.Now(),
		})
	}
}

// IsRiskHalted 查询风控停机状态
func (e *Engine) IsRiskHalted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.riskHalted
}

// GetPortfolioSummary 组合快照
func (e *Engine) GetPortfolioSummary() PortfolioSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	unrealized := e.positions.TotalUnrealizedPnL()
	return PortfolioSummary{
		Cash:            e.cash,
		PortfolioValue:  e.positions.PortfolioValue(e.cash),
		UnrealizedPnL:   unrealized,
		TotalPnL:        e.realizedPnL + unrealized,
		PositionHeat:    e.positions.Heat(),
		OpenPositions:   e.positions.OpenCount(),
		ClosedPositions: e.positions.ClosedCount(),
		TotalSignals:    len(e.signals),
	}
}

// GetPerformanceMetrics 绩效快照
func (e *Engine) GetPerformanceMetrics() PerformanceMetrics {
	e.mu.Lock()
	signals := len(e.signals)
	e.mu.Unlock()

	return PerformanceMetrics{
		WinRate:          e.perf.WinRate(),
		ProfitFactor:     e.profitFactor(),
		RealizedSharpe:   e.perf.RealizedSharpe(),
		TradesExecuted:   e.perf.TotalTrades(),
		SignalsGenerated: signals,
	}
}

// profitFactor 盈亏比：Σ盈利/Σ|亏损|；无交易为 0，
// 有盈利无亏损时返回 ProfitFactorCap 哨兵。
func (e *Engine) profitFactor() float64 {
	var wins, losses float64
	for _, t := range e.perf.Trades() {
		if t.PnL > 0 {
			wins += t.PnL
		} else {
			losses += -t.PnL
		}
	}
	if losses == 0 {
		if wins == 0 {
			return 0
		}
		return ProfitFactorCap
	}
	return wins / losses
}

// SignalHistory 返回信号历史副本。
func (e *Engine) SignalHistory() []LiveSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LiveSignal, len(e.signals))
	copy(out, e.signals)
	return out
}

// Cash 当前可用资金
func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

// publishTelemetryLocked 推送组合指标到监控
func (e *Engine) publishTelemetryLocked() {
	if e.monitor == nil {
		return
	}
	e.monitor.UpdatePortfolio(
		e.cash,
		e.positions.PortfolioValue(e.cash),
		e.positions.TotalUnrealizedPnL(),
		e.positions.Heat(),
		e.positions.OpenCount(),
	)
	e.monitor.UpdateDailyPnL(e.dailyPnL)
}

func (e *Engine) recordRiskReject() {
	if e.monitor != nil {
		e.monitor.RecordRiskReject()
	}
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.InitialCapital <= 0 {
		return errors.New("initial_capital must be > 0")
	}
	if cfg.MaxPositionSize <= 0 {
		return errors.New("max_position_size must be > 0")
	}
	if cfg.MaxPortfolioHeat <= 0 {
		return errors.New("max_portfolio_heat must be > 0")
	}
	if cfg.MaxDailyLoss <= 0 {
		return errors.New("max_daily_loss must be > 0")
	}
	if cfg.MaxDrawdown >= 0 {
		return errors.New("max_drawdown must be negative")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Positions == nil {
		return errors.New("position manager is required")
	}
	if comp.Gateway == nil {
		return errors.New("order gateway is required")
	}
	if comp.Risk == nil {
		return errors.New("risk manager is required")
	}
	if comp.Perf == nil {
		return errors.New("performance monitor is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
