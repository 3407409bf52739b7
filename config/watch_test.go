package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadOnWrite(t *testing.T) {
	path := writeTemp(t, validYAML)

	w, err := NewWatcher(path, 10*time.Millisecond)
	require.NoError(t, err)

	updates := make(chan AppConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, func(cfg AppConfig) {
		select {
		case updates <- cfg:
		default:
		}
	}))
	defer w.Stop()

	// 写入合法变更
	require.NoError(t, os.WriteFile(path, []byte(validYAML+"log:\n  level: debug\n"), 0644))

	select {
	case cfg := <-updates:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not deliver update")
	}
}

func TestWatcher_IgnoresBrokenConfig(t *testing.T) {
	path := writeTemp(t, validYAML)

	w, err := NewWatcher(path, time.Millisecond)
	require.NoError(t, err)

	updates := make(chan AppConfig, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, func(cfg AppConfig) { updates <- cfg }))
	defer w.Stop()

	// 非法 YAML 不应触发回调
	require.NoError(t, os.WriteFile(path, []byte(":::"), 0644))

	select {
	case <-updates:
		t.Fatal("broken config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}
