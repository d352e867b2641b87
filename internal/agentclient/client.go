// Package agentclient 通过 WebSocket 与分析 agent 后端进行流式对话。
//
// 每轮对话一条连接: 发送请求帧后, 后端按帧推送文本增量、工具调用事件,
// 以 done / error 帧结束。连接中断、读空闲超时、ctx 取消都转换为
// OnStreamError, 每次调用恰好一个终止回调。
package agentclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
	"github.com/datalab-agent/analyst-go/pkg/logger"
	"github.com/datalab-agent/analyst-go/pkg/util"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultReadIdleTimeout = 120 * time.Second
	defaultPingInterval    = 20 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 8 << 20
)

// Config 客户端配置, 零值字段使用默认值。
type Config struct {
	URL             string
	DialTimeout     time.Duration
	ReadIdleTimeout time.Duration
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	Header          http.Header
}

// Client 实现 chatstate.Streamer。
type Client struct {
	cfg    Config
	dialer websocket.Dialer
	active sync.WaitGroup
}

var _ chatstate.Streamer = (*Client)(nil)

// New 创建客户端。
func New(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = defaultReadIdleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			NetDialContext:   (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
		},
	}
}

// Open 建立连接并发送请求帧, 成功后立即返回; 事件由后台 readLoop 回调 h。
// ctx 在整个流期间有效, 取消即中止本次流。
func (c *Client) Open(ctx context.Context, req chatstate.ChatRequest, h chatstate.StreamHandler) error {
	const op = "Client.Open"
	if strings.TrimSpace(c.cfg.URL) == "" {
		return apperrors.New(op, "agent url not configured")
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return apperrors.Wrap(err, op, "ws connect")
	}
	if conn == nil {
		return apperrors.New(op, "dial returned nil websocket connection")
	}
	conn.SetReadLimit(c.cfg.MaxMessageBytes)

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(requestFrame{Type: "chat", Data: req}); err != nil {
		_ = conn.Close()
		return apperrors.Wrap(err, op, "send request")
	}
	_ = conn.SetWriteDeadline(time.Time{})

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdleTimeout))
		return nil
	})

	s := &stream{
		cfg:     c.cfg,
		conn:    conn,
		handler: h,
		turnID:  req.TurnID,
		done:    make(chan struct{}),
	}
	c.active.Add(3)
	util.SafeGo(func() { defer c.active.Done(); s.readLoop() })
	util.SafeGo(func() { defer c.active.Done(); s.pingLoop() })
	util.SafeGo(func() { defer c.active.Done(); s.watchContext(ctx) })

	logger.Debug("agentclient: stream opened",
		logger.FieldURL, c.cfg.URL,
		logger.FieldSessionID, req.SessionID,
		logger.FieldTurnID, req.TurnID,
	)
	return nil
}

// Wait 等待所有流的后台 goroutine 退出 (用于优雅关闭)。
func (c *Client) Wait() { c.active.Wait() }

// stream 单次流式调用。
type stream struct {
	cfg      Config
	conn     *websocket.Conn
	handler  chatstate.StreamHandler
	turnID   string
	finished atomic.Bool
	done     chan struct{}
	mu       sync.Mutex // 串行化 handler 回调
}

// terminate 保证终止回调恰好一次, 之后关闭连接。
func (s *stream) terminate(fn func()) bool {
	if !s.finished.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	close(s.done)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
	return true
}

func (s *stream) fail(message string) {
	s.terminate(func() { s.handler.OnStreamError(message) })
}

func (s *stream) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.finished.Load() {
				return
			}
			reason := readErrorMessage(err)
			logger.Warn("agentclient: readLoop read failed",
				logger.FieldTurnID, s.turnID,
				"idle_timeout", isIdleTimeoutError(err),
				logger.FieldError, err,
			)
			s.fail(reason)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadIdleTimeout))

		frame, err := NormalizeFrame(message)
		if err != nil {
			logger.Warn("agentclient: unparseable frame skipped",
				logger.FieldTurnID, s.turnID,
				logger.FieldError, err,
				"raw_prefix", truncateBytes(message, 200),
			)
			continue
		}
		if frame.Kind == FrameIgnore {
			logger.Debug("agentclient: frame ignored", logger.FieldEventType, frame.Type)
			continue
		}
		if frame.Kind.Terminal() {
			s.terminate(func() { dispatch(s.handler, frame) })
			return
		}
		s.mu.Lock()
		if !s.finished.Load() {
			dispatch(s.handler, frame)
		}
		s.mu.Unlock()
	}
}

func (s *stream) pingLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.cfg.WriteTimeout))
			if err != nil {
				if !s.finished.Load() {
					s.fail("连接中断: " + err.Error())
				}
				return
			}
		}
	}
}

func (s *stream) watchContext(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
		if s.terminate(func() { s.handler.OnStreamError("请求已取消") }) {
			logger.Info("agentclient: stream cancelled", logger.FieldTurnID, s.turnID)
		}
	}
}

func readErrorMessage(err error) string {
	switch {
	case isIdleTimeoutError(err):
		return "响应超时"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "连接在响应完成前关闭"
	default:
		return "连接中断: " + err.Error()
	}
}

func isIdleTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "i/o timeout") || strings.Contains(text, "read timeout")
}

func truncateBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
