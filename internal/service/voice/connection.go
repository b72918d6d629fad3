package voice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionOptions 语音代理 WebSocket 的连接参数
type ConnectionOptions struct {
	HandshakeTimeout time.Duration // 拨号与升级
	ReadTimeout      time.Duration // 无数据超过该时长即断开通话
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// DefaultConnectionOptions 返回 NewWebSocketSession 使用的默认参数
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		HandshakeTimeout: 15 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	def := DefaultConnectionOptions()
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	return o
}

// dial 建立连接并设置由 pong 刷新的读超时，失败时不重试
func dial(ctx context.Context, opts ConnectionOptions, url string, header http.Header) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		return nil
	})

	return conn, nil
}

// pingLoop 定时发送 ping，避免连接被中间层判定为空闲
func pingLoop(ctx context.Context, conn *websocket.Conn, opts ConnectionOptions) {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
