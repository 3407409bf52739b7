package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 监听配置文件变化。
// 引擎的风控参数在构造后固定，热更新只允许作用于日志级别等
// 可安全切换的字段，由回调方自行取舍。
type Watcher struct {
	path       string
	cooldown   time.Duration
	watcher    *fsnotify.Watcher
	lastReload time.Time
	mu         sync.Mutex
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewWatcher 创建配置监听器。
func NewWatcher(path string, cooldown time.Duration) (*Watcher, error) {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		cooldown: cooldown,
		watcher:  fw,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 开始监听；onUpdate 在解析成功后收到最新配置。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go w.watch(ctx, onUpdate)
	return nil
}

// Stop 停止监听并关闭底层 watcher。
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
	select {
	case <-w.doneChan:
	case <-time.After(time.Second):
	}
	return w.watcher.Close()
}

func (w *Watcher) watch(ctx context.Context, onUpdate func(AppConfig)) {
	defer close(w.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				w.handleChange(onUpdate)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// 监听错误不致命，继续
		}
	}
}

func (w *Watcher) handleChange(onUpdate func(AppConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 冷却时间内的连续写入只处理一次
	if time.Since(w.lastReload) < w.cooldown {
		return
	}
	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		return
	}
	w.lastReload = time.Now()
	if onUpdate != nil {
		onUpdate(cfg)
	}
}
