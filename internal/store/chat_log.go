// chat_log.go: chat_logs 查询 (写入由 logger.DBHandler 完成)。
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatLogStore 日志查询。
type ChatLogStore struct{ BaseStore }

// NewChatLogStore 创建日志存储。
func NewChatLogStore(pool *pgxpool.Pool) *ChatLogStore {
	return &ChatLogStore{NewBaseStore(pool)}
}

const chatLogCols = `id, ts, level, message, component, session_id, turn_id, call_id,
	event_type, tool_name, duration_ms, extra`

// LogListParams 日志过滤参数, 空值不过滤。
type LogListParams struct {
	Level     string
	Component string
	SessionID string
	TurnID    string
	EventType string
	ToolName  string
	Keyword   string
	Limit     int
}

// buildLogQuery 拼接日志查询 SQL。
func buildLogQuery(p LogListParams) (string, []any) {
	return NewQueryBuilder().
		Eq("level", p.Level).
		Eq("component", p.Component).
		Eq("session_id", p.SessionID).
		Eq("turn_id", p.TurnID).
		Eq("event_type", p.EventType).
		Eq("tool_name", p.ToolName).
		KeywordLike(p.Keyword, "message", "component", "tool_name").
		Build("SELECT "+chatLogCols+" FROM chat_logs", "ts DESC, id DESC", p.Limit)
}

// List 查询日志。
func (s *ChatLogStore) List(ctx context.Context, p LogListParams) ([]ChatLog, error) {
	sql, params := buildLogQuery(p)
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	return collectRows[ChatLog](rows)
}

// ListFilterValues 返回各筛选列的去重值。
func (s *ChatLogStore) ListFilterValues(ctx context.Context) (map[string][]string, error) {
	return DistinctMap(ctx, s.pool, "chat_logs", "level", "component", "event_type", "tool_name")
}
