package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig 测试用的毫秒级延迟配置
func fastConfig() Config {
	return Config{
		PartialFillDelay: 5 * time.Millisecond,
		FillDelay:        5 * time.Millisecond,
		PartialFillRatio: 0.5,
		SlippagePct:      0.001,
		CommissionRate:   0.0004,
	}
}

func TestSendOrder_Validation(t *testing.T) {
	s := NewSimulator(fastConfig())

	testCases := []struct {
		name  string
		order Order
	}{
		{"空标的", Order{Side: SideBuy, Quantity: 1, Price: 100}},
		{"数量为零", Order{Symbol: "X", Side: SideBuy, Quantity: 0, Price: 100}},
		{"价格为负", Order{Symbol: "X", Side: SideBuy, Quantity: 1, Price: -1}},
		{"方向非法", Order{Symbol: "X", Side: "LONG", Quantity: 1, Price: 100}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.SendOrder(tc.order)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestSendOrder_PartialThenFullFill(t *testing.T) {
	s := NewSimulator(fastConfig())

	var mu sync.Mutex
	var reports []ExecutionReport
	s.SetExecutionCallback(func(r ExecutionReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})

	id, err := s.SendOrder(Order{Symbol: "BTCUSDT", Side: SideBuy, Quantity: 10, Price: 100})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st, ok := s.OrderStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusSubmitted, st)

	s.Wait()

	o, ok := s.GetOrder(id)
	require.True(t, ok)
	assert.Equal(t, StatusFilled, o.Status)
	assert.Equal(t, 10.0, o.FilledQuantity)
	assert.LessOrEqual(t, o.FilledQuantity, o.Quantity)

	// 部分成交带滑点，剩余按委托价成交：均价应落在两者之间
	slipped := 100 * 1.001
	assert.Greater(t, o.AverageFillPrice, 100.0)
	assert.Less(t, o.AverageFillPrice, slipped)
	assert.Greater(t, o.Commission, 0.0)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 2)
	assert.Equal(t, StatusPartial, reports[0].Status)
	assert.Equal(t, 5.0, reports[0].FillQuantity)
	assert.Equal(t, StatusFilled, reports[1].Status)
	assert.Equal(t, 5.0, reports[1].FillQuantity)
	assert.Equal(t, 10.0, reports[1].FilledQuantity)
}

func TestSellOrder_SlipsDown(t *testing.T) {
	s := NewSimulator(fastConfig())

	id, err := s.SendOrder(Order{Symbol: "X", Side: SideSell, Quantity: 4, Price: 200})
	require.NoError(t, err)
	s.Wait()

	o, _ := s.GetOrder(id)
	assert.Equal(t, StatusFilled, o.Status)
	assert.Less(t, o.AverageFillPrice, 200.0, "卖单滑点向下")
}

func TestCancelOrder_BeforeFill(t *testing.T) {
	cfg := fastConfig()
	cfg.PartialFillDelay = 100 * time.Millisecond
	s := NewSimulator(cfg)

	id, err := s.SendOrder(Order{Symbol: "X", Side: SideBuy, Quantity: 1, Price: 100})
	require.NoError(t, err)

	assert.True(t, s.CancelOrder(id), "成交前撤单应成功")

	st, _ := s.OrderStatus(id)
	assert.Equal(t, StatusCancelled, st)

	// 成交模拟不得推进已撤销的订单
	s.Wait()
	o, _ := s.GetOrder(id)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, 0.0, o.FilledQuantity)
}

func TestCancelOrder_AfterTerminalIsNoop(t *testing.T) {
	s := NewSimulator(fastConfig())

	id, err := s.SendOrder(Order{Symbol: "X", Side: SideBuy, Quantity: 1, Price: 100})
	require.NoError(t, err)
	s.Wait()

	st, _ := s.OrderStatus(id)
	require.Equal(t, StatusFilled, st)

	// 撤已成交订单返回 false，不是错误
	assert.False(t, s.CancelOrder(id))
	assert.False(t, s.CancelOrder("no-such-order"))
}

func TestCancelOrder_BetweenPartialAndFull(t *testing.T) {
	cfg := fastConfig()
	cfg.PartialFillDelay = 5 * time.Millisecond
	cfg.FillDelay = 100 * time.Millisecond
	s := NewSimulator(cfg)

	partial := make(chan struct{}, 1)
	s.SetExecutionCallback(func(r ExecutionReport) {
		if r.Status == StatusPartial {
			partial <- struct{}{}
		}
	})

	id, err := s.SendOrder(Order{Symbol: "X", Side: SideBuy, Quantity: 10, Price: 100})
	require.NoError(t, err)

	select {
	case <-partial:
	case <-time.After(2 * time.Second):
		t.Fatal("partial fill not observed")
	}

	assert.True(t, s.CancelOrder(id))
	s.Wait()

	o, _ := s.GetOrder(id)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, 5.0, o.FilledQuantity, "已部分成交的数量保留")
}

func TestExecutions_Recorded(t *testing.T) {
	s := NewSimulator(fastConfig())

	_, err := s.SendOrder(Order{Symbol: "X", Side: SideBuy, Quantity: 2, Price: 100})
	require.NoError(t, err)
	s.Wait()

	fills := s.Executions()
	require.Len(t, fills, 2)
	total := 0.0
	for _, f := range fills {
		assert.LessOrEqual(t, f.Quantity, 2.0)
		total += f.Quantity
	}
	assert.Equal(t, 2.0, total)
	assert.Equal(t, 2, s.ExecutionStats().TotalFills)
}
