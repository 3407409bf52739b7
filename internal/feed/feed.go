package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-trader-go/infrastructure/logger"
)

// PriceSink 行情消费端，由引擎实现。
type PriceSink interface {
	UpdateMarketPrices(prices map[string]float64)
}

// Config 行情客户端配置
type Config struct {
	URL            string
	Symbols        []string
	ReconnectDelay time.Duration
}

// Client websocket 行情客户端：逐帧读取 {symbol: price} JSON，
// 过滤订阅标的后推给 PriceSink；断线按固定间隔重连。
type Client struct {
	cfg    Config
	sink   PriceSink
	logger *logger.Logger
	dialer *websocket.Dialer

	subscribed map[string]struct{}
}

// NewClient 创建行情客户端
func NewClient(cfg Config, sink PriceSink, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	if sink == nil {
		return nil, errors.New("price sink is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	subscribed := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		subscribed[s] = struct{}{}
	}

	return &Client{
		cfg:        cfg,
		sink:       sink,
		logger:     log,
		dialer:     websocket.DefaultDialer,
		subscribed: subscribed,
	}, nil
}

// Run 持续消费行情直到 ctx 取消；每次断线后等待 ReconnectDelay 重连。
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("行情连接中断，等待重连",
				zap.String("url", c.cfg.URL),
				zap.Duration("delay", c.cfg.ReconnectDelay),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// runOnce 单次连接生命周期：拨号、读帧、推送。
func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	c.logger.Info("行情连接建立", zap.String("url", c.cfg.URL))

	// ctx 取消时主动断开，解除 ReadMessage 阻塞
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		prices, err := parseFrame(message)
		if err != nil {
			c.logger.Warn("丢弃无法解析的行情帧", zap.Error(err))
			continue
		}

		filtered := c.filter(prices)
		if len(filtered) > 0 {
			c.sink.UpdateMarketPrices(filtered)
		}
	}
}

// filter 按订阅过滤；未配置标的时全量透传。
func (c *Client) filter(prices map[string]float64) map[string]float64 {
	if len(c.subscribed) == 0 {
		return prices
	}
	out := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		if _, ok := c.subscribed[symbol]; ok {
			out[symbol] = price
		}
	}
	return out
}

// parseFrame 解析一帧行情，丢弃非正价格。
func parseFrame(message []byte) (map[string]float64, error) {
	var prices map[string]float64
	if err := json.Unmarshal(message, &prices); err != nil {
		return nil, fmt.Errorf("unmarshal prices: %w", err)
	}
	for symbol, price := range prices {
		if price <= 0 {
			return nil, fmt.Errorf("non-positive price for %s: %f", symbol, price)
		}
	}
	return prices, nil
}
