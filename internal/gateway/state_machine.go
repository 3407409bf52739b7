package gateway

import "fmt"

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机：状态只能沿合法路径前进，终态不可再转换。
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 提交
		{StatusPending, StatusSubmitted},

		// 成交路径：部分成交 → 完全成交；小单可直接全部成交
		{StatusSubmitted, StatusPartial},
		{StatusSubmitted, StatusFilled},
		{StatusPartial, StatusPartial}, // 多次部分成交
		{StatusPartial, StatusFilled},

		// 撤单
		{StatusPending, StatusCancelled},
		{StatusSubmitted, StatusCancelled},
		{StatusPartial, StatusCancelled},

		// 券商拒单
		{StatusSubmitted, StatusRejected},

		// 终态不能转换（FILLED, CANCELLED, REJECTED）
	}
	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// IsTerminal 判断是否是终态
func (sm *StateMachine) IsTerminal(status Status) bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// CanCancel 判断当前状态下是否可以撤单
func (sm *StateMachine) CanCancel(status Status) bool {
	return !sm.IsTerminal(status)
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	allowed := make([]Status, 0)
	for transition := range sm.transitions {
		if transition.From == current && transition.From != transition.To {
			allowed = append(allowed, transition.To)
		}
	}
	return allowed
}
