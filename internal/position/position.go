package position

import "time"

// Status represents position lifecycle.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position holds one directional holding in a single symbol.
type Position struct {
	Symbol           string
	Quantity         float64
	EntryPrice       float64
	EntryTime        time.Time
	CurrentPrice     float64
	Status           Status
	UnrealizedPnL    float64
	UnrealizedPnLPct float64

	// 平仓后填充
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnL float64
}

// Notional returns the absolute dollar exposure at the current mark.
func (p Position) Notional() float64 {
	v := p.Quantity * p.CurrentPrice
	if v < 0 {
		return -v
	}
	return v
}

// HoldingDuration returns how long the position has been (or was) held.
func (p Position) HoldingDuration(now time.Time) time.Duration {
	if p.Status == StatusClosed {
		return p.ExitTime.Sub(p.EntryTime)
	}
	return now.Sub(p.EntryTime)
}
