// handler.go: Dashboard REST API handlers。
package dashboard

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/datalab-agent/analyst-go/internal/store"
	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
)

// registerRoutes 注册 API 路由。
func (s *Server) registerRoutes() {
	api := s.router.Group("/api")

	api.GET("/session", s.getSession)
	api.POST("/session/select", bindJSON(s.selectSession))
	api.POST("/session/rename", bindJSON(s.renameSession))
	api.POST("/session/model", bindJSON(s.setModel))

	api.POST("/messages", bindJSON(s.sendMessage))
	api.POST("/history", bindJSON(s.loadHistory))

	api.GET("/flow", s.getFlow)

	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", bindJSON(s.createSession))
	api.DELETE("/sessions/:id", s.deleteSession)
	api.GET("/datasets", s.listDatasets)

	api.GET("/logs", s.listLogs)
	api.GET("/logs/filters", s.logFilters)

	api.GET("/events", s.sseHandler)

	if dir := s.deps.StaticDir; dir != "" {
		s.router.Static("/static", dir)
		s.router.GET("/", func(c *gin.Context) { c.File(filepath.Join(dir, "index.html")) })
	}
}

// ========================================
// 辅助: 从 query 读分页参数
// ========================================

func queryLimit(c *gin.Context, def int) int {
	v, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if v < 1 {
		return def
	}
	if v > 2000 {
		return 2000
	}
	return v
}

// ========================================
// 当前会话
// ========================================

func (s *Server) getSession(c *gin.Context) {
	success(c, s.deps.Chat.Snapshot())
}

type selectRequest struct {
	SessionID   string `json:"session_id"`
	DatasetID   string `json:"dataset_id"`
	LoadHistory bool   `json:"load_history"`
}

func (s *Server) selectSession(c *gin.Context, req selectRequest) {
	if err := s.deps.Chat.SelectSession(req.SessionID, req.DatasetID); err != nil {
		writeError(c, err)
		return
	}
	if req.LoadHistory {
		if err := s.deps.Chat.LoadHistory(c.Request.Context(), req.SessionID); err != nil {
			writeError(c, err)
			return
		}
		// 历史里可能没有 dataset, 以请求为准
		if req.DatasetID != "" {
			if err := s.deps.Chat.SelectSession(req.SessionID, req.DatasetID); err != nil {
				writeError(c, err)
				return
			}
		}
	}
	success(c, s.deps.Chat.Snapshot())
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameSession(c *gin.Context, req renameRequest) {
	if err := s.deps.Chat.RenameSession(c.Request.Context(), req.Name); err != nil {
		writeError(c, err)
		return
	}
	success(c, s.deps.Chat.Snapshot())
}

type modelRequest struct {
	Model string `json:"model"`
}

func (s *Server) setModel(c *gin.Context, req modelRequest) {
	if strings.TrimSpace(req.Model) == "" {
		badRequest(c, "invalid_input", "model is required")
		return
	}
	s.deps.Chat.SetModel(req.Model)
	success(c, s.deps.Chat.Snapshot())
}

// ========================================
// 消息 / 历史
// ========================================

type messageRequest struct {
	Message string `json:"message"`
}

// sendMessage 发起一轮对话, 返回 202; 后续进度通过 SSE 推送。
func (s *Server) sendMessage(c *gin.Context, req messageRequest) {
	if limit := s.deps.MaxMessageRunes; limit > 0 && utf8.RuneCountInString(req.Message) > limit {
		writeError(c, apperrors.Wrapf(apperrors.ErrInvalidInput, "Server.sendMessage", "message too long: max %d characters", limit))
		return
	}
	if err := s.deps.Chat.SendMessage(s.baseCtx, req.Message); err != nil {
		writeError(c, err)
		return
	}
	accepted(c, s.deps.Chat.Snapshot())
}

type historyRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) loadHistory(c *gin.Context, req historyRequest) {
	if err := s.deps.Chat.LoadHistory(c.Request.Context(), req.SessionID); err != nil {
		writeError(c, err)
		return
	}
	success(c, s.deps.Chat.Snapshot())
}

// ========================================
// 流程面板
// ========================================

func (s *Server) getFlow(c *gin.Context) {
	if s.deps.Flow == nil {
		success(c, gin.H{"steps": []any{}, "logs": []any{}})
		return
	}
	success(c, s.deps.Flow.Snapshot())
}

// ========================================
// 会话目录 (需要数据库)
// ========================================

func (s *Server) requireSessions(c *gin.Context) bool {
	if s.deps.Sessions == nil {
		fail(c, http.StatusServiceUnavailable, "persistence_disabled", "未配置数据库")
		return false
	}
	return true
}

func (s *Server) listSessions(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	items, err := s.deps.Sessions.List(c.Request.Context(), store.SessionListParams{
		DatasetID: c.Query("dataset_id"),
		Keyword:   c.Query("keyword"),
		Limit:     queryLimit(c, 100),
	})
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, items)
}

type createSessionRequest struct {
	Name      string `json:"name"`
	DatasetID string `json:"dataset_id"`
}

func (s *Server) createSession(c *gin.Context, req createSessionRequest) {
	if !s.requireSessions(c) {
		return
	}
	item, err := s.deps.Sessions.Create(c.Request.Context(), req.Name, req.DatasetID)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, item)
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	id := c.Param("id")
	if id == s.deps.Chat.Snapshot().SessionID {
		fail(c, http.StatusConflict, "session_active", "不能删除当前会话")
		return
	}
	if err := s.deps.Sessions.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) listDatasets(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	items, err := s.deps.Sessions.Datasets(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, items)
}

// ========================================
// 日志
// ========================================

func (s *Server) listLogs(c *gin.Context) {
	if s.deps.Logs == nil {
		success(c, []any{})
		return
	}
	items, err := s.deps.Logs.List(c.Request.Context(), store.LogListParams{
		Level:     c.Query("level"),
		Component: c.Query("component"),
		SessionID: c.Query("session_id"),
		TurnID:    c.Query("turn_id"),
		EventType: c.Query("event_type"),
		ToolName:  c.Query("tool_name"),
		Keyword:   c.Query("keyword"),
		Limit:     queryLimit(c, 100),
	})
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, items)
}

func (s *Server) logFilters(c *gin.Context) {
	if s.deps.Logs == nil {
		success(c, gin.H{})
		return
	}
	filters, err := s.deps.Logs.ListFilterValues(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, filters)
}
