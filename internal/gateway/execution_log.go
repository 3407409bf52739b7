package gateway

import (
	"sync"
	"time"
)

// Fill 一次成交记录
type Fill struct {
	OrderID   string
	Side      string
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// ExecutionLog 保存近期成交历史（滑动窗口），并维护成交率统计。
type ExecutionLog struct {
	mu sync.RWMutex

	fills      []Fill
	maxHistory int
	windowSize time.Duration

	totalFills     int
	recentFillRate float64 // 每分钟成交次数
}

// ExecutionStats 成交统计
type ExecutionStats struct {
	TotalFills     int
	RecentFills    int
	RecentFillRate float64
}

// NewExecutionLog 创建成交日志
func NewExecutionLog(maxHistory int, windowSize time.Duration) *ExecutionLog {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	if windowSize <= 0 {
		windowSize = 5 * time.Minute
	}
	return &ExecutionLog{
		fills:      make([]Fill, 0, maxHistory),
		maxHistory: maxHistory,
		windowSize: windowSize,
	}
}

// RecordFill 记录成交
func (l *ExecutionLog) RecordFill(orderID, side string, price, quantity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fills = append(l.fills, Fill{
		OrderID:   orderID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now(),
	})
	l.totalFills++

	l.trimLocked()
	l.updateFillRateLocked()
}

// trimLocked 清理窗口外与超量的记录
func (l *ExecutionLog) trimLocked() {
	cutoff := time.Now().Add(-l.windowSize)
	validStart := 0
	for i, f := range l.fills {
		if f.Timestamp.After(cutoff) {
			validStart = i
			break
		}
	}
	if validStart > 0 {
		l.fills = l.fills[validStart:]
	}
	if len(l.fills) > l.maxHistory {
		l.fills = l.fills[len(l.fills)-l.maxHistory:]
	}
}

func (l *ExecutionLog) updateFillRateLocked() {
	if len(l.fills) == 0 {
		l.recentFillRate = 0
		return
	}
	windowStart := time.Now().Add(-l.windowSize)
	count := 0
	for _, f := range l.fills {
		if f.Timestamp.After(windowStart) {
			count++
		}
	}
	if minutes := l.windowSize.Minutes(); minutes > 0 {
		l.recentFillRate = float64(count) / minutes
	}
}

// Fills 返回成交记录的只读副本
func (l *ExecutionLog) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Stats 返回统计信息
func (l *ExecutionLog) Stats() ExecutionStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ExecutionStats{
		TotalFills:     l.totalFills,
		RecentFills:    len(l.fills),
		RecentFillRate: l.recentFillRate,
	}
}
