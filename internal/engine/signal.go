package engine

import (
	"fmt"
	"time"
)

// Direction 信号方向
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Valid 校验方向取值。
func (d Direction) Valid() bool {
	switch d {
	case DirectionBuy, DirectionSell, DirectionHold:
		return true
	default:
		return false
	}
}

func (d Direction) String() string { return string(d) }

// LiveSignal 外部策略层推送的交易信号；引擎按到达顺序消费，
// 不做去重，至多一次交付由生产方保证。
type LiveSignal struct {
	Symbol       string
	Timestamp    time.Time
	Direction    Direction
	Confidence   float64 // [0,1]
	EntryPrice   float64
	TargetPrice  float64
	StopLoss     float64
	PositionSize float64 // 下单数量；<=0 时由风控测算
	Reason       string
	Source       string
}

// Validate 基础字段校验。
func (s LiveSignal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal symbol is required")
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("invalid signal direction: %q", s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal confidence out of range: %f", s.Confidence)
	}
	if s.Direction != DirectionHold && s.EntryPrice <= 0 {
		return fmt.Errorf("signal entry price must be positive: %f", s.EntryPrice)
	}
	return nil
}
