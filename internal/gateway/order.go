package gateway

import "time"

// Side represents order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status represents order lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusPartial   Status = "PARTIAL"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Order holds one order record, exclusively owned by the gateway.
// Terminal orders are immutable.
type Order struct {
	ID               string
	Symbol           string
	Side             Side
	Quantity         float64
	Price            float64
	Timestamp        time.Time
	Status           Status
	FilledQuantity   float64
	AverageFillPrice float64
	Commission       float64
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// ExecutionReport 成交/终态回报，通过回调推送给引擎。
type ExecutionReport struct {
	OrderID          string
	Symbol           string
	Side             Side
	Status           Status
	FillQuantity     float64 // 本次成交数量，终态回报可为 0
	FillPrice        float64 // 本次成交价格
	FilledQuantity   float64 // 累计成交数量
	AverageFillPrice float64
	Commission       float64
	Timestamp        time.Time
}
