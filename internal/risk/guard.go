package risk

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionLimit 单仓位名义价值超限。
	ErrPositionLimit = errors.New("position limit exceeded")
	// ErrPortfolioHeat 组合敞口超限。
	ErrPortfolioHeat = errors.New("portfolio heat exceeded")
)

// Guard 下单前置校验的通用接口。
type Guard interface {
	PreOrder(symbol string, qty, price float64) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) PreOrder(symbol string, qty, price float64) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.PreOrder(symbol, qty, price); err != nil {
			return err
		}
	}
	return nil
}

// PositionLimitGuard 用 CheckPositionLimits 拦截超限订单。
type PositionLimitGuard struct {
	Risk *Manager
}

func (g PositionLimitGuard) PreOrder(symbol string, qty, price float64) error {
	if g.Risk == nil {
		return nil
	}
	if !g.Risk.CheckPositionLimits(symbol, qty, price) {
		return fmt.Errorf("%w: %s %.2f@%.2f", ErrPositionLimit, symbol, qty, price)
	}
	return nil
}

// HeatSource 提供当前组合敞口。
type HeatSource interface {
	Heat() float64
}

// PortfolioHeatGuard 按"现有敞口+本单名义价值"校验组合上限。
type PortfolioHeatGuard struct {
	Risk *Manager
	Heat HeatSource
}

func (g PortfolioHeatGuard) PreOrder(symbol string, qty, price float64) error {
	if g.Risk == nil || g.Heat == nil {
		return nil
	}
	projected := g.Heat.Heat() + qty*price
	if !g.Risk.CheckPortfolioHeat(projected) {
		return fmt.Errorf("%w: projected %.2f", ErrPortfolioHeat, projected)
	}
	return nil
}
