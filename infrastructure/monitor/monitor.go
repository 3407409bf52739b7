package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCanceled  prometheus.Counter
	ordersRejected  prometheus.Counter
	fillsTotal      prometheus.Counter

	// 交易指标
	tradesTotal     prometheus.Counter
	signalsTotal    *prometheus.CounterVec
	riskRejects     prometheus.Counter

	// 组合指标
	cash           prometheus.Gauge
	portfolioValue prometheus.Gauge
	unrealizedPnL  prometheus.Gauge
	positionHeat   prometheus.Gauge
	openPositions  prometheus.Gauge
	dailyPnL       prometheus.Gauge

	// 风控告警指标
	alertsTotal *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "lt",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_submitted_total",
			Help:      "订单提交总数",
		}),
		ordersFilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_filled_total",
			Help:      "订单完全成交总数",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "订单撤单总数",
		}),
		ordersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_rejected_total",
			Help:      "订单拒绝总数",
		}),
		fillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fills_total",
			Help:      "成交回报总数（含部分成交）",
		}),

		tradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trades_total",
			Help:      "完整平仓交易总数",
		}),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "signals_total",
				Help:      "处理的信号总数",
			},
			[]string{"direction"},
		),
		riskRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "risk_rejects_total",
			Help:      "风控拒单总数",
		}),

		cash: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cash",
			Help:      "当前可用资金",
		}),
		portfolioValue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "portfolio_value",
			Help:      "组合总价值（现金+持仓市值）",
		}),
		unrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unrealized_pnl",
			Help:      "未实现盈亏",
		}),
		positionHeat: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "position_heat",
			Help:      "组合总敞口（绝对名义价值之和）",
		}),
		openPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_positions",
			Help:      "当前持仓数量",
		}),
		dailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "daily_pnl",
			Help:      "当日盈亏",
		}),

		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "risk_alerts_total",
				Help:      "风控告警总数",
			},
			[]string{"level"},
		),
	}

	return m
}

// 订单相关方法
func (m *Monitor) RecordOrderSubmitted() { m.ordersSubmitted.Inc() }
func (m *Monitor) RecordOrderFilled()    { m.ordersFilled.Inc() }
func (m *Monitor) RecordOrderCanceled()  { m.ordersCanceled.Inc() }
func (m *Monitor) RecordOrderRejected()  { m.ordersRejected.Inc() }
func (m *Monitor) RecordFill()           { m.fillsTotal.Inc() }

// 交易相关方法
func (m *Monitor) RecordTrade() { m.tradesTotal.Inc() }

func (m *Monitor) RecordSignal(direction string) {
	m.signalsTotal.WithLabelValues(direction).Inc()
}

func (m *Monitor) RecordRiskReject() { m.riskRejects.Inc() }

// 组合相关方法
func (m *Monitor) UpdatePortfolio(cash, value, unrealized, heat float64, open int) {
	m.cash.Set(cash)
	m.portfolioValue.Set(value)
	m.unrealizedPnL.Set(unrealized)
	m.positionHeat.Set(heat)
	m.openPositions.Set(float64(open))
}

func (m *Monitor) UpdateDailyPnL(value float64) { m.dailyPnL.Set(value) }

// 告警相关方法
func (m *Monitor) RecordAlert(level string) {
	m.alertsTotal.WithLabelValues(level).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
