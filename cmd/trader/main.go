package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"live-trader-go/config"
	"live-trader-go/infrastructure/alert"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/infrastructure/monitor"
	"live-trader-go/internal/engine"
	"live-trader-go/internal/feed"
	"live-trader-go/internal/gateway"
	"live-trader-go/internal/perf"
	"live-trader-go/internal/position"
	"live-trader-go/internal/risk"
)

// alertBridge 把风控告警桥接到告警通道和监控指标。
type alertBridge struct {
	alerts  *alert.Manager
	monitor *monitor.Monitor
}

func (b alertBridge) Publish(a risk.RiskAlert) {
	b.monitor.RecordAlert(string(a.Level))
	_ = b.alerts.SendAlert(alert.Alert{
		Level:     string(a.Level),
		Message:   a.Message,
		Symbol:    a.Symbol,
		Timestamp: a.Timestamp,
		Fields: map[string]interface{}{
			"action":         string(a.Action),
			"severity_score": a.SeverityScore,
		},
	})
}

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", "", "覆盖配置中的 metrics 监听地址")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logr, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Outputs:    cfg.Log.Outputs,
		OutputFile: cfg.Log.OutputFile,
		ErrorFile:  cfg.Log.ErrorFile,
		Format:     cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logr.Close()

	mon := monitor.New(monitor.DefaultConfig())
	serveMetrics(cfg.Metrics.Addr, mon, logr)

	alertMgr := alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", os.Stdout),
		alert.NewConsoleChannel("console"),
	}, 30*time.Second)

	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionSize:  cfg.Engine.MaxPositionSize,
		MaxPortfolioHeat: cfg.Engine.MaxPortfolioHeat,
		MaxDailyLoss:     cfg.Engine.MaxDailyLoss,
		MaxDrawdown:      cfg.Engine.MaxDrawdown,
		MaxRiskPerTrade:  cfg.Engine.MaxRiskPerTrade,
	})
	riskMgr.SetSink(alertBridge{alerts: alertMgr, monitor: mon})

	gw := gateway.NewSimulator(gateway.Config{
		PartialFillDelay: cfg.Gateway.PartialFillDelay(),
		FillDelay:        cfg.Gateway.FillDelay(),
		PartialFillRatio: cfg.Gateway.PartialFillRatio,
		SlippagePct:      cfg.Gateway.SlippagePct,
		CommissionRate:   cfg.Gateway.CommissionRate,
	})

	eng, err := engine.New(engine.Config{
		InitialCapital:   cfg.Engine.InitialCapital,
		MaxPositionSize:  cfg.Engine.MaxPositionSize,
		MaxPortfolioHeat: cfg.Engine.MaxPortfolioHeat,
		MaxDailyLoss:     cfg.Engine.MaxDailyLoss,
		MaxDrawdown:      cfg.Engine.MaxDrawdown,
		MaxRiskPerTrade:  cfg.Engine.MaxRiskPerTrade,
		WindowSize:       cfg.Engine.WindowSize,
	}, engine.Components{
		Positions:    position.NewManager(),
		Gateway:      gw,
		Risk:         riskMgr,
		Perf:         perf.NewMonitor(cfg.Engine.WindowSize),
		Logger:       logr,
		AlertManager: alertMgr,
		Monitor:      mon,
	})
	if err != nil {
		log.Fatalf("初始化交易引擎失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 配置热更新只允许调整日志级别，引擎限额在生命周期内不可变
	watcher, err := config.NewWatcher(*cfgPath, 2*time.Second)
	if err != nil {
		logr.Warn("配置监听初始化失败", zap.Error(err))
	} else {
		if err := watcher.Start(ctx, func(updated config.AppConfig) {
			if err := logr.SetLevel(updated.Log.Level); err != nil {
				logr.Warn("更新日志级别失败", zap.Error(err))
				return
			}
			logr.Info("日志级别已更新", zap.String("level", updated.Log.Level))
		}); err != nil {
			logr.Warn("配置监听启动失败", zap.Error(err))
		}
		defer watcher.Stop()
	}

	eng.StartTrading()

	if cfg.Feed.URL != "" {
		client, err := feed.NewClient(feed.Config{
			URL:            cfg.Feed.URL,
			Symbols:        cfg.Feed.Symbols,
			ReconnectDelay: cfg.Feed.ReconnectDelay(),
		}, eng, logr)
		if err != nil {
			log.Fatalf("初始化行情客户端失败: %v", err)
		}
		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				logr.Error("行情客户端退出", zap.Error(err))
			}
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logr.Debug("sd_notify 不可用", zap.Error(err))
	}

	logr.Info("live trader 已就绪",
		zap.String("config", *cfgPath),
		zap.String("feed", cfg.Feed.URL),
		zap.Float64("initial_capital", cfg.Engine.InitialCapital))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	// 停止前清算所有持仓
	eng.StopTrading()

	summary := eng.GetPortfolioSummary()
	logr.Info("live trader 退出",
		zap.Float64("cash", summary.Cash),
		zap.Float64("total_pnl", summary.TotalPnL),
		zap.Int("closed_positions", summary.ClosedPositions),
		zap.Int("total_signals", summary.TotalSignals))
}

func serveMetrics(addr string, mon *monitor.Monitor, logr *logger.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	go func() {
		logr.Info("metrics 服务启动", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logr.Error("metrics 服务退出", zap.Error(err))
		}
	}()
}
