// Package dashboard 提供对话状态的 HTTP + SSE 接口。
//
// 渲染层通过 REST 调用控制器操作, 通过 /api/events 接收快照 / 流程面板 / 提示推送。
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/flowpanel"
	"github.com/datalab-agent/analyst-go/internal/store"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// Chat 控制器操作集 (*chatstate.Controller 实现)。
type Chat interface {
	Snapshot() chatstate.Snapshot
	Subscribe(fn func(chatstate.Snapshot)) (unsubscribe func())
	SelectSession(sessionID, datasetID string) error
	SetModel(model string)
	RenameSession(ctx context.Context, name string) error
	SendMessage(ctx context.Context, text string) error
	LoadHistory(ctx context.Context, sessionID string) error
}

// FlowView 流程面板只读视图 (*flowpanel.Panel 实现)。
type FlowView interface {
	Snapshot() flowpanel.State
}

// SessionCatalog 会话目录 (*store.SessionStore 实现), 可选。
type SessionCatalog interface {
	List(ctx context.Context, p store.SessionListParams) ([]store.ChatSession, error)
	Create(ctx context.Context, name, datasetID string) (*store.ChatSession, error)
	Delete(ctx context.Context, id string) error
	Datasets(ctx context.Context) ([]string, error)
}

// LogQuerier 日志查询 (*store.ChatLogStore 实现), 可选。
type LogQuerier interface {
	List(ctx context.Context, p store.LogListParams) ([]store.ChatLog, error)
	ListFilterValues(ctx context.Context) (map[string][]string, error)
}

// Deps 服务依赖。Chat 必填, 其余可为 nil。
type Deps struct {
	Chat            Chat
	Flow            FlowView
	Sessions        SessionCatalog
	Logs            LogQuerier
	Bus             *EventBus
	KeepAlive       time.Duration
	MaxMessageRunes int
	StaticDir       string
}

// Server Dashboard HTTP 服务。
type Server struct {
	router *gin.Engine
	deps   Deps
	bus    *EventBus

	// baseCtx 承载流式调用的生命周期; 请求 ctx 在响应后即取消, 不能用于 SendMessage。
	baseCtx     context.Context
	unsubscribe func()
}

// NewServer 创建 Dashboard 服务并订阅控制器快照。
func NewServer(deps Deps) *Server {
	if deps.Bus == nil {
		deps.Bus = NewEventBus()
	}
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 30 * time.Second
	}
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())
	s := &Server{router: r, deps: deps, bus: deps.Bus, baseCtx: context.Background()}
	s.unsubscribe = deps.Chat.Subscribe(s.bus.PublishSnapshot)
	s.registerRoutes()
	return s
}

// Engine 返回 Gin 引擎。
func (s *Server) Engine() *gin.Engine { return s.router }

// Bus 返回事件总线。
func (s *Server) Bus() *EventBus { return s.bus }

// Close 取消控制器订阅。
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Serve 监听 addr 直到 ctx 取消, 随后优雅关闭。ctx 同时作为流式调用的基准 context。
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard: listening", logger.FieldAddr, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dashboard: shutdown failed", logger.FieldError, err)
		return err
	}
	logger.Info("dashboard: stopped")
	return nil
}

// accessLog 为请求注入带 method/path 的日志器, 并以 Debug 级别记录耗时。
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := logger.With(logger.FieldMethod, c.Request.Method, logger.FieldPath, c.Request.URL.Path)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
		logger.Debug("dashboard: request",
			logger.FieldMethod, c.Request.Method,
			logger.FieldPath, c.Request.URL.Path,
			logger.FieldStatus, c.Writer.Status(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
}
