package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/infrastructure/logger"
	"live-trader-go/internal/engine"
	"live-trader-go/internal/gateway"
	"live-trader-go/internal/perf"
	"live-trader-go/internal/position"
	"live-trader-go/internal/risk"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

func defaultConfig() engine.Config {
	return engine.Config{
		InitialCapital:   1_000_000,
		MaxPositionSize:  500_000,
		MaxPortfolioHeat: 2_000_000,
		MaxDailyLoss:     50_000,
		MaxDrawdown:      -0.20,
	}
}

func newTestEngine(t *testing.T, cfg engine.Config) (*engine.Engine, *gateway.Simulator) {
	t.Helper()

	gw := gateway.NewSimulator(gateway.Config{
		PartialFillDelay: time.Millisecond,
		FillDelay:        time.Millisecond,
		PartialFillRatio: 0.5,
	})
	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionSize:  cfg.MaxPositionSize,
		MaxPortfolioHeat: cfg.MaxPortfolioHeat,
		MaxDailyLoss:     cfg.MaxDailyLoss,
		MaxDrawdown:      cfg.MaxDrawdown,
	})

	eng, err := engine.New(cfg, engine.Components{
		Positions: position.NewManager(),
		Gateway:   gw,
		Risk:      riskMgr,
		Perf:      perf.NewMonitor(cfg.WindowSize),
		Logger:    quietLogger(t),
	})
	require.NoError(t, err)
	return eng, gw
}

func buySignal(symbol string, qty, entry float64) engine.LiveSignal {
	return engine.LiveSignal{
		Symbol:       symbol,
		Timestamp:    time.Now(),
		Direction:    engine.DirectionBuy,
		Confidence:   0.8,
		EntryPrice:   entry,
		PositionSize: qty,
		Source:       "test",
	}
}

func sellSignal(symbol string, exit float64) engine.LiveSignal {
	return engine.LiveSignal{
		Symbol:     symbol,
		Timestamp:  time.Now(),
		Direction:  engine.DirectionSell,
		Confidence: 0.8,
		EntryPrice: exit,
		Source:     "test",
	}
}

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*engine.Config)
	}{
		{"初始资金必须为正", func(c *engine.Config) { c.InitialCapital = 0 }},
		{"单仓上限必须为正", func(c *engine.Config) { c.MaxPositionSize = -1 }},
		{"回撤阈值必须为负", func(c *engine.Config) { c.MaxDrawdown = 0.2 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			_, err := engine.New(cfg, engine.Components{})
			assert.Error(t, err)
		})
	}

	t.Run("缺少组件", func(t *testing.T) {
		_, err := engine.New(defaultConfig(), engine.Components{})
		assert.ErrorContains(t, err, "invalid components")
	})
}

// TestScenarioBuyMarkSell 买入→盯市→卖出的完整资金流水
func TestScenarioBuyMarkSell(t *testing.T) {
	eng, gw := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	orderID, err := eng.ProcessSignal(buySignal("BTCUSDT", 1000, 100))
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	summary := eng.GetPortfolioSummary()
	assert.InDelta(t, 900_000.0, summary.Cash, 1e-6, "提交即预扣资金")
	assert.Equal(t, 1, summary.OpenPositions)

	eng.UpdateMarketPrices(map[string]float64{"BTCUSDT": 105})
	summary = eng.GetPortfolioSummary()
	assert.InDelta(t, 5_000.0, summary.UnrealizedPnL, 1e-6)
	assert.InDelta(t, 1_005_000.0, summary.PortfolioValue, 1e-6)

	_, err = eng.ProcessSignal(sellSignal("BTCUSDT", 105))
	require.NoError(t, err)

	gw.Wait()
	summary = eng.GetPortfolioSummary()
	assert.InDelta(t, 1_005_000.0, summary.Cash, 1e-6)
	assert.Equal(t, 0, summary.OpenPositions)
	assert.Equal(t, 1, summary.ClosedPositions)
	assert.InDelta(t, 5_000.0, summary.TotalPnL, 1e-6)
	assert.Equal(t, 2, summary.TotalSignals)
}

// TestDuplicateBuyRejected 同标的重复买入应明确拒绝而非覆盖
func TestDuplicateBuyRejected(t *testing.T) {
	eng, gw := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 100, 100))
	require.NoError(t, err)

	_, err = eng.ProcessSignal(buySignal("BTCUSDT", 100, 100))
	assert.ErrorIs(t, err, position.ErrDuplicatePosition)

	gw.Wait()
	summary := eng.GetPortfolioSummary()
	assert.Equal(t, 1, summary.OpenPositions)
	assert.InDelta(t, 990_000.0, summary.Cash, 1e-6, "第二笔不应扣款")
}

func TestProcessSignal_NotTrading(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 100, 100))
	assert.ErrorIs(t, err, engine.ErrNotTrading)
	assert.Empty(t, eng.SignalHistory())
}

func TestProcessSignal_InsufficientCapital(t *testing.T) {
	cfg := defaultConfig()
	cfg.InitialCapital = 1_000
	cfg.MaxPositionSize = 1_000_000
	cfg.MaxPortfolioHeat = 10_000_000
	eng, _ := newTestEngine(t, cfg)
	eng.StartTrading()

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 100, 100))
	assert.ErrorIs(t, err, engine.ErrInsufficientCapital)

	summary := eng.GetPortfolioSummary()
	assert.InDelta(t, 1_000.0, summary.Cash, 1e-9, "失败不得扣款")
	assert.Equal(t, 0, summary.OpenPositions)
	assert.Equal(t, 1, summary.TotalSignals, "失败信号仍进入历史")
}

func TestProcessSignal_RiskRejected(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPositionSize = 100_000
	eng, _ := newTestEngine(t, cfg)
	eng.StartTrading()

	// 名义价值 10000×50=500000 超过单仓上限
	_, err := eng.ProcessSignal(buySignal("X", 10000, 50))
	assert.ErrorIs(t, err, engine.ErrRiskRejected)

	summary := eng.GetPortfolioSummary()
	assert.Equal(t, 0, summary.OpenPositions)
	assert.InDelta(t, 1_000_000.0, summary.Cash, 1e-6)
}

func TestProcessSignal_SellWithoutPosition(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	orderID, err := eng.ProcessSignal(sellSignal("BTCUSDT", 100))
	assert.NoError(t, err)
	assert.Empty(t, orderID, "无持仓的卖出是安全空操作")
}

func TestProcessSignal_Hold(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	sig := buySignal("BTCUSDT", 100, 100)
	sig.Direction = engine.DirectionHold
	orderID, err := eng.ProcessSignal(sig)
	assert.NoError(t, err)
	assert.Empty(t, orderID)
	assert.Len(t, eng.SignalHistory(), 1)
}

// TestStopTrading_Liquidation 停止交易时按最后标记价清算全部持仓
func TestStopTrading_Liquidation(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 1000, 100))
	require.NoError(t, err)
	_, err = eng.ProcessSignal(buySignal("ETHUSDT", 100, 2000))
	require.NoError(t, err)

	eng.UpdateMarketPrices(map[string]float64{"BTCUSDT": 110, "ETHUSDT": 1900})

	eng.StopTrading()
	assert.False(t, eng.IsTrading())

	summary := eng.GetPortfolioSummary()
	assert.Equal(t, 0, summary.OpenPositions)
	assert.Equal(t, 2, summary.ClosedPositions)
	// 1000000 − 100000 − 200000 + 110000 + 190000
	assert.InDelta(t, 1_000_000.0, summary.Cash, 1e-6)
	assert.InDelta(t, 0.0, summary.UnrealizedPnL, 1e-9)
}

// TestDrawdownHalt 回撤超限后拒绝新的买入
func TestDrawdownHalt(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 4000, 100))
	require.NoError(t, err)

	// 峰值 1000000；跌至 55 时组合 = 600000 + 220000 = 820000，
	// 回撤 -18% 未触发
	eng.UpdateMarketPrices(map[string]float64{"BTCUSDT": 55})
	assert.False(t, eng.IsRiskHalted())

	// 跌至 1 时组合 = 604000，回撤约 -39.6% 超限
	eng.UpdateMarketPrices(map[string]float64{"BTCUSDT": 1})
	assert.True(t, eng.IsRiskHalted())

	_, err = eng.ProcessSignal(buySignal("ETHUSDT", 10, 100))
	assert.ErrorIs(t, err, engine.ErrRiskRejected)
}

func TestGetPerformanceMetrics_ProfitFactor(t *testing.T) {
	eng, gw := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	t.Run("无交易时为零", func(t *testing.T) {
		assert.Zero(t, eng.GetPerformanceMetrics().ProfitFactor)
	})

	_, err := eng.ProcessSignal(buySignal("BTCUSDT", 100, 100))
	require.NoError(t, err)
	_, err = eng.ProcessSignal(sellSignal("BTCUSDT", 110))
	require.NoError(t, err)
	gw.Wait()

	t.Run("只有盈利时返回哨兵值", func(t *testing.T) {
		m := eng.GetPerformanceMetrics()
		assert.Equal(t, engine.ProfitFactorCap, m.ProfitFactor)
		assert.InDelta(t, 1.0, m.WinRate, 1e-12)
		assert.Equal(t, 1, m.TradesExecuted)
	})

	_, err = eng.ProcessSignal(buySignal("ETHUSDT", 100, 100))
	require.NoError(t, err)
	_, err = eng.ProcessSignal(sellSignal("ETHUSDT", 95))
	require.NoError(t, err)
	gw.Wait()

	t.Run("盈亏并存时为比值", func(t *testing.T) {
		m := eng.GetPerformanceMetrics()
		assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9) // 1000/500
		assert.Equal(t, 2, m.TradesExecuted)
	})
}

func TestSignalValidation(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	sig := buySignal("", 100, 100)
	_, err := eng.ProcessSignal(sig)
	assert.ErrorContains(t, err, "symbol")

	sig = buySignal("BTCUSDT", 100, 100)
	sig.Confidence = 1.5
	_, err = eng.ProcessSignal(sig)
	assert.ErrorContains(t, err, "confidence")
}

// TestAutoSizing 信号未携带数量时由风控测算
func TestAutoSizing(t *testing.T) {
	eng, gw := newTestEngine(t, defaultConfig())
	eng.StartTrading()

	sig := buySignal("BTCUSDT", 0, 100)
	sig.Confidence = 1.0
	orderID, err := eng.ProcessSignal(sig)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	gw.Wait()
	// 名义 = 1000000×0.02×1.0×1.0 = 20000，数量 = 200
	order, ok := gw.GetOrder(orderID)
	require.True(t, ok)
	assert.InDelta(t, 200.0, order.Quantity, 1e-9)
	assert.InDelta(t, 980_000.0, eng.Cash(), 1e-6)
}
