package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"live-trader-go/infrastructure/logger"
	"live-trader-go/internal/engine"
	"live-trader-go/internal/gateway"
	"live-trader-go/internal/perf"
	"live-trader-go/internal/position"
	"live-trader-go/internal/risk"
)

// 一个确定性的本地回放：合成随机游走价格序列，驱动信号→风控→
// 下单→盯市→平仓的完整链路；不连接任何真实行情或经纪商。
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "trading symbol")
	steps := flag.Int("steps", 200, "number of price steps to replay")
	seed := flag.Int64("seed", 42, "random seed (deterministic path)")
	capital := flag.Float64("capital", 1_000_000, "initial capital")
	basePrice := flag.Float64("basePrice", 100, "starting price")
	buyDip := flag.Float64("buyDip", -0.01, "buy when step return below this")
	takeProfit := flag.Float64("takeProfit", 0.03, "close when unrealized pct above this")
	stopLoss := flag.Float64("stopLoss", -0.02, "close when unrealized pct below this")
	flag.Parse()

	logr, err := logger.New(logger.Config{Level: "warn", Format: "console", Outputs: []string{"stdout"}})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logr.Close()

	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionSize:  *capital / 2,
		MaxPortfolioHeat: *capital * 2,
		MaxDailyLoss:     *capital / 20,
		MaxDrawdown:      -0.20,
	})
	gw := gateway.NewSimulator(gateway.Config{
		PartialFillDelay: time.Millisecond,
		FillDelay:        time.Millisecond,
		PartialFillRatio: 0.5,
		SlippagePct:      0.0005,
		CommissionRate:   0.0004,
	})

	eng, err := engine.New(engine.Config{
		InitialCapital:   *capital,
		MaxPositionSize:  *capital / 2,
		MaxPortfolioHeat: *capital * 2,
		MaxDailyLoss:     *capital / 20,
		MaxDrawdown:      -0.20,
	}, engine.Components{
		Positions: position.NewManager(),
		Gateway:   gw,
		Risk:      riskMgr,
		Perf:      perf.NewMonitor(0),
		Logger:    logr,
	})
	if err != nil {
		log.Fatalf("初始化交易引擎失败: %v", err)
	}

	eng.StartTrading()

	rng := rand.New(rand.NewSource(*seed))
	price := *basePrice
	for i := 0; i < *steps; i++ {
		ret := rng.NormFloat64() * 0.01
		price *= 1 + ret
		eng.UpdateMarketPrices(map[string]float64{*symbol: price})

		summary := eng.GetPortfolioSummary()

		switch {
		case summary.OpenPositions == 0 && ret < *buyDip:
			// 下跌后买入，仓位数量由风控测算
			_, err := eng.ProcessSignal(engine.LiveSignal{
				Symbol:     *symbol,
				Timestamp:  time.Now(),
				Direction:  engine.DirectionBuy,
				Confidence: 0.5 + rng.Float64()/2,
				EntryPrice: price,
				Reason:     "dip",
				Source:     "replay",
			})
			if err != nil {
				fmt.Printf("step %4d price=%8.2f buy rejected: %v\n", i, price, err)
			} else {
				fmt.Printf("step %4d price=%8.2f BUY\n", i, price)
			}

		case summary.OpenPositions > 0 && pnlPct(eng) > *takeProfit:
			sell(eng, *symbol, price, "take_profit", i)

		case summary.OpenPositions > 0 && pnlPct(eng) < *stopLoss:
			sell(eng, *symbol, price, "stop_loss", i)
		}
	}

	eng.StopTrading()

	summary := eng.GetPortfolioSummary()
	metrics := eng.GetPerformanceMetrics()
	fmt.Println("---- portfolio ----")
	fmt.Printf("cash:             %.2f\n", summary.Cash)
	fmt.Printf("portfolio value:  %.2f\n", summary.PortfolioValue)
	fmt.Printf("total pnl:        %.2f\n", summary.TotalPnL)
	fmt.Printf("closed positions: %d\n", summary.ClosedPositions)
	fmt.Printf("total signals:    %d\n", summary.TotalSignals)
	fmt.Println("---- performance ----")
	fmt.Printf("trades executed:  %d\n", metrics.TradesExecuted)
	fmt.Printf("win rate:         %.2f%%\n", metrics.WinRate*100)
	fmt.Printf("profit factor:    %.2f\n", metrics.ProfitFactor)
	fmt.Printf("realized sharpe:  %.2f\n", metrics.RealizedSharpe)

	stats := gw.ExecutionStats()
	fmt.Println("---- executions ----")
	fmt.Printf("total fills:      %d\n", stats.TotalFills)
	fmt.Printf("recent fills:     %d\n", stats.RecentFills)
}

func pnlPct(eng *engine.Engine) float64 {
	summary := eng.GetPortfolioSummary()
	if summary.PositionHeat == 0 {
		return 0
	}
	return summary.UnrealizedPnL / summary.PositionHeat
}

func sell(eng *engine.Engine, symbol string, price float64, reason string, step int) {
	_, err := eng.ProcessSignal(engine.LiveSignal{
		Symbol:     symbol,
		Timestamp:  time.Now(),
		Direction:  engine.DirectionSell,
		Confidence: 1,
		EntryPrice: price,
		Reason:     reason,
		Source:     "replay",
	})
	if err != nil {
		fmt.Printf("step %4d price=%8.2f sell rejected: %v\n", step, price, err)
	} else {
		fmt.Printf("step %4d price=%8.2f SELL (%s)\n", step, price, reason)
	}
}
