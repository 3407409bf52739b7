package risk

import (
	"fmt"
	"math"
	"sync"
)

// tradingDaysPerYear 年化因子基数。
const tradingDaysPerYear = 252

// Limits 风控阈值配置。
type Limits struct {
	MaxPositionSize  float64 // 单仓位最大名义价值
	MaxPortfolioHeat float64 // 组合总敞口上限
	MaxDailyLoss     float64 // 单日最大亏损（正数）
	MaxDrawdown      float64 // 最大回撤阈值（负数，如 -0.20）
	MaxRiskPerTrade  float64 // 单笔风险占比，默认 0.02
}

// Manager 风控管理器：执行限额检查、动态止损与仓位测算，
// 每次检查失败都会向告警日志追加一条 RiskAlert。
// check_* 的布尔结果由引擎强制执行（检查失败即拒单）。
type Manager struct {
	cfg   Limits
	clock Clock

	mu     sync.RWMutex
	alerts []RiskAlert
	sink   AlertSink
}

// NewManager 创建风控管理器。
func NewManager(cfg Limits) *Manager {
	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = 0.02
	}
	return &Manager{
		cfg:   cfg,
		clock: NowUTC,
	}
}

// SetSink 注册告警输出端。
func (m *Manager) SetSink(sink AlertSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// SetClock 注入时钟（测试用）。
func (m *Manager) SetClock(clock Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Limits 返回当前阈值配置。
func (m *Manager) Limits() Limits {
	return m.cfg
}

// CheckPositionLimits 校验单仓位名义价值。
// 超限返回 false 并记录一条 WARNING 告警。
func (m *Manager) CheckPositionLimits(symbol string, qty, price float64) bool {
	value := qty * price
	if value <= m.cfg.MaxPositionSize {
		return true
	}
	m.raise(RiskAlert{
		Level:  LevelWarning,
		Symbol: symbol,
		Action: ActionReducePosition,
		Message: fmt.Sprintf("position value %.2f exceeds max position size %.2f",
			value, m.cfg.MaxPositionSize),
	})
	return false
}

// CheckPortfolioHeat 校验组合总敞口。超限记 CRITICAL。
func (m *Manager) CheckPortfolioHeat(heat float64) bool {
	if heat <= m.cfg.MaxPortfolioHeat {
		return true
	}
	m.raise(RiskAlert{
		Level:  LevelCritical,
		Action: ActionReducePosition,
		Message: fmt.Sprintf("portfolio heat %.2f exceeds max %.2f",
			heat, m.cfg.MaxPortfolioHeat),
	})
	return false
}

// CheckDailyLoss 校验当日亏损。超限记 CRITICAL。
func (m *Manager) CheckDailyLoss(dailyPnL float64) bool {
	if dailyPnL >= -m.cfg.MaxDailyLoss {
		return true
	}
	m.raise(RiskAlert{
		Level:  LevelCritical,
		Action: ActionClosePosition,
		Message: fmt.Sprintf("daily pnl %.2f breaches max daily loss %.2f",
			dailyPnL, m.cfg.MaxDailyLoss),
	})
	return false
}

// CheckDrawdown 校验相对峰值的回撤。阈值为负数，
// (current − peak)/peak 低于阈值时记 CRITICAL。
func (m *Manager) CheckDrawdown(currentValue, peakValue float64) bool {
	if peakValue <= 0 {
		return true
	}
	drawdown := (currentValue - peakValue) / peakValue
	if drawdown >= m.cfg.MaxDrawdown {
		return true
	}
	m.raise(RiskAlert{
		Level:  LevelCritical,
		Action: ActionClosePosition,
		Message: fmt.Sprintf("drawdown %.4f breaches max drawdown %.4f",
			drawdown, m.cfg.MaxDrawdown),
	})
	return false
}

// CalculateDynamicStopLoss 动态止损价：
// 有 ATR 时 entry − 2×ATR，否则按波动率 entry×(1 − 2×vol/√252)。
func (m *Manager) CalculateDynamicStopLoss(entryPrice, volatility, atr float64) float64 {
	if atr > 0 {
		return entryPrice - 2*atr
	}
	return entryPrice * (1 - 2*volatility/math.Sqrt(tradingDaysPerYear))
}

// CalculatePositionSize 按置信度与波动率测算仓位（名义价值），
// 结果恒在 [0, MaxPositionSize] 内。
func (m *Manager) CalculatePositionSize(confidence, portfolioValue, volatility float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if portfolioValue <= 0 || volatility < 0 {
		return 0
	}

	riskAmount := portfolioValue * m.cfg.MaxRiskPerTrade
	confidenceMult := 0.5 + 0.5*confidence
	volMult := 1 / (1 + volatility)

	size := riskAmount * confidenceMult * volMult
	if size > m.cfg.MaxPositionSize {
		size = m.cfg.MaxPositionSize
	}
	if size < 0 {
		size = 0
	}
	return size
}

// AssessCorrelationRisk 相关性风险评分：给定各标的对的相关系数，
// 取均值并裁剪到 [0,1]。
func (m *Manager) AssessCorrelationRisk(pairCorrelations map[string]float64) float64 {
	if len(pairCorrelations) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range pairCorrelations {
		sum += c
	}
	score := sum / float64(len(pairCorrelations))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Alerts 返回告警日志的只读副本。
func (m *Manager) Alerts() []RiskAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RiskAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// AlertCount 按级别统计告警数；level 为空统计全部。
func (m *Manager) AlertCount(level AlertLevel) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level == "" {
		return len(m.alerts)
	}
	n := 0
	for _, a := range m.alerts {
		if a.Level == level {
			n++
		}
	}
	return n
}

// raise 补全字段、追加到日志并推送到输出端。
func (m *Manager) raise(alert RiskAlert) {
	m.mu.Lock()
	alert.Timestamp = m.clock.Now()
	alert.SeverityScore = alert.Level.SeverityScore()
	if alert.Action == "" {
		alert.Action = ActionNoAction
	}
	m.alerts = append(m.alerts, alert)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink.Publish(alert)
	}
}
