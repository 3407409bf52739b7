package risk

import "time"

// AlertLevel 告警级别
type AlertLevel string

const (
	LevelCritical AlertLevel = "CRITICAL"
	LevelWarning  AlertLevel = "WARNING"
	LevelInfo     AlertLevel = "INFO"
)

// SeverityScore 级别对应的严重度评分
func (l AlertLevel) SeverityScore() float64 {
	switch l {
	case LevelCritical:
		return 1.0
	case LevelWarning:
		return 0.5
	case LevelInfo:
		return 0.2
	default:
		return 0
	}
}

// AlertAction 建议动作
type AlertAction string

const (
	ActionReducePosition     AlertAction = "REDUCE_POSITION"
	ActionClosePosition      AlertAction = "CLOSE_POSITION"
	ActionIncreaseMonitoring AlertAction = "INCREASE_MONITORING"
	ActionNoAction           AlertAction = "NO_ACTION"
)

// RiskAlert 风控告警；创建后不可变。
type RiskAlert struct {
	Level         AlertLevel
	Message       string
	Timestamp     time.Time
	Symbol        string // 可为空
	Action        AlertAction
	SeverityScore float64
}

// AlertSink 告警输出端的抽象；由上层桥接到告警通道/指标。
type AlertSink interface {
	Publish(alert RiskAlert)
}
