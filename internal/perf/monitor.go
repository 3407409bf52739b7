package perf

import (
	"math"
	"sync"
	"time"
)

const tradingDaysPerYear = 252

// Metric 通用绩效指标记录
type Metric struct {
	Timestamp time.Time
	Name      string
	Value     float64
	Symbol    string
	Metadata  map[string]string
}

// TradeRecord 平仓交易记录
type TradeRecord struct {
	Timestamp time.Time
	Symbol    string
	PnL       float64
	Duration  time.Duration
}

// SignalRecord 信号记录
type SignalRecord struct {
	Timestamp  time.Time
	Symbol     string
	Type       string
	Confidence float64
}

// HealthSnapshot 系统健康快照
type HealthSnapshot struct {
	Timestamp time.Time
	Metrics   map[string]float64
}

// Summary 绩效汇总快照
type Summary struct {
	TotalTrades      int
	WindowTrades     int
	WinRate          float64
	RealizedSharpe   float64
	SignalsGenerated int
	SignalEffect     float64
	DailyPnL         float64
	AvgTradeDuration time.Duration
}

// Monitor 绩效监控：各类记录进入固定容量的环形缓冲区，
// 写满后按 FIFO 淘汰最旧记录；滚动统计基于窗口内数据。
type Monitor struct {
	windowSize int

	mu      sync.RWMutex
	metrics []Metric
	trades  []TradeRecord
	signals []SignalRecord
	health  []HealthSnapshot

	totalTrades  int
	totalSignals int

	now func() time.Time
}

// NewMonitor 创建绩效监控器；windowSize<=0 时使用默认值 100。
func NewMonitor(windowSize int) *Monitor {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Monitor{
		windowSize: windowSize,
		now:        time.Now,
	}
}

// SetNowFunc 注入时钟（测试用）。
func (m *Monitor) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RecordMetric 记录一条通用指标。
func (m *Monitor) RecordMetric(name string, value float64, symbol string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = appendBounded(m.metrics, Metric{
		Timestamp: m.now(),
		Name:      name,
		Value:     value,
		Symbol:    symbol,
		Metadata:  metadata,
	}, m.windowSize)
}

// RecordTrade 记录一笔平仓交易。
func (m *Monitor) RecordTrade(symbol string, pnl float64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = appendBounded(m.trades, TradeRecord{
		Timestamp: m.now(),
		Symbol:    symbol,
		PnL:       pnl,
		Duration:  duration,
	}, m.windowSize)
	m.totalTrades++
}

// RecordSignal 记录一条信号。
func (m *Monitor) RecordSignal(symbol, signalType string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = appendBounded(m.signals, SignalRecord{
		Timestamp:  m.now(),
		Symbol:     symbol,
		Type:       signalType,
		Confidence: confidence,
	}, m.windowSize)
	m.totalSignals++
}

// RecordSystemHealth 记录一次系统健康快照。
func (m *Monitor) RecordSystemHealth(snapshot HealthSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = m.now()
	}
	m.health = appendBounded(m.health, snapshot, m.windowSize)
}

// RealizedSharpe 已实现夏普：mean(pnl)/std(pnl)×√252。
// 交易数不足 2 或标准差为 0 时返回 0，绝不产生除零。
func (m *Monitor) RealizedSharpe() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.trades)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, t := range m.trades {
		mean += t.PnL
	}
	mean /= float64(n)

	variance := 0.0
	for _, t := range m.trades {
		d := t.PnL - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

// WinRate 胜率：盈利交易数/总交易数，无交易时为 0。
func (m *Monitor) WinRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return winRateLocked(m.trades)
}

// SignalEffectiveness 信号有效性：盈利交易数/信号数，无信号时为 0。
func (m *Monitor) SignalEffectiveness() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.signals) == 0 {
		return 0
	}
	wins := 0
	for _, t := range m.trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(m.signals))
}

// DailyPnL 当日（UTC）已实现盈亏之和。
func (m *Monitor) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	today := m.now().UTC().Truncate(24 * time.Hour)
	sum := 0.0
	for _, t := range m.trades {
		if !t.Timestamp.UTC().Truncate(24 * time.Hour).Equal(today) {
			continue
		}
		sum += t.PnL
	}
	return sum
}

// AvgTradeDuration 平均持仓时长。
func (m *Monitor) AvgTradeDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.trades) == 0 {
		return 0
	}
	var total time.Duration
	for _, t := range m.trades {
		total += t.Duration
	}
	return total / time.Duration(len(m.trades))
}

// Summary 汇总只读快照。
func (m *Monitor) Summary() Summary {
	return Summary{
		TotalTrades:      m.TotalTrades(),
		WindowTrades:     len(m.Trades()),
		WinRate:          m.WinRate(),
		RealizedSharpe:   m.RealizedSharpe(),
		SignalsGenerated: m.TotalSignals(),
		SignalEffect:     m.SignalEffectiveness(),
		DailyPnL:         m.DailyPnL(),
		AvgTradeDuration: m.AvgTradeDuration(),
	}
}

// TotalTrades 累计交易数（不受窗口淘汰影响）。
func (m *Monitor) TotalTrades() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalTrades
}

// TotalSignals 累计信号数。
func (m *Monitor) TotalSignals() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalSignals
}

// Trades 返回窗口内交易记录的副本。
func (m *Monitor) Trades() []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// Signals 返回窗口内信号记录的副本。
func (m *Monitor) Signals() []SignalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SignalRecord, len(m.signals))
	copy(out, m.signals)
	return out
}

// Metrics 返回窗口内指标记录的副本。
func (m *Monitor) Metrics() []Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Metric, len(m.metrics))
	copy(out, m.metrics)
	return out
}

func winRateLocked(trades []TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// appendBounded 追加记录并维持容量上限，满时淘汰最旧一条。
func appendBounded[T any](buf []T, item T, capSize int) []T {
	buf = append(buf, item)
	if len(buf) > capSize {
		buf = buf[1:]
	}
	return buf
}
