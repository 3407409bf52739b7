package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/infrastructure/logger"
)

type capturingSink struct {
	mu      sync.Mutex
	updates []map[string]float64
}

func (s *capturingSink) UpdateMarketPrices(prices map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, prices)
}

func (s *capturingSink) Updates() []map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]float64, len(s.updates))
	copy(out, s.updates)
	return out
}

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

// wsServer 启动一个推送固定帧序列的 websocket 测试服务
func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// 保持连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewClient_Validation(t *testing.T) {
	log := quietLogger(t)

	_, err := NewClient(Config{}, &capturingSink{}, log)
	assert.ErrorContains(t, err, "url")

	_, err = NewClient(Config{URL: "ws://x"}, nil, log)
	assert.ErrorContains(t, err, "sink")
}

func TestClient_ReceivesAndFilters(t *testing.T) {
	srv := wsServer(t, []string{
		`{"BTCUSDT": 50000, "ETHUSDT": 3000, "DOGEUSDT": 0.1}`,
		`{"not json`,
		`{"BTCUSDT": 50100}`,
	})
	defer srv.Close()

	sink := &capturingSink{}
	client, err := NewClient(Config{
		URL:            wsURL(srv),
		Symbols:        []string{"BTCUSDT", "ETHUSDT"},
		ReconnectDelay: 10 * time.Millisecond,
	}, sink, quietLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(sink.Updates()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	updates := sink.Updates()
	assert.Equal(t, map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}, updates[0],
		"未订阅标的应被过滤")
	assert.Equal(t, map[string]float64{"BTCUSDT": 50100}, updates[1],
		"坏帧应被丢弃而不中断消费")
}

func TestParseFrame(t *testing.T) {
	testCases := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{"正常帧", `{"BTCUSDT": 50000}`, false},
		{"非法 JSON", `oops`, true},
		{"非正价格", `{"BTCUSDT": -1}`, true},
		{"空对象", `{}`, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFrame([]byte(tc.frame))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
