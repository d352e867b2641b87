// Package store 提供会话 / 轮次 / 日志的 PostgreSQL 持久化。
//
// Go struct 的 db tag 直接对应 PostgreSQL 列名，由 pgx.RowToStructByName 扫描。
package store

import (
	"encoding/json"
	"time"
)

// ========================================
// 会话: 表 chat_sessions
// ========================================

// ChatSession 会话元数据。
type ChatSession struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	DatasetID string    `db:"dataset_id" json:"dataset_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ========================================
// 轮次: 表 chat_turns
// ========================================

// chatTurnRow chat_turns 的一行; content / tool_calls 为 JSONB 原文。
type chatTurnRow struct {
	TurnID      string          `db:"turn_id"`
	Ts          time.Time       `db:"ts"`
	UserMessage string          `db:"user_message"`
	Content     json.RawMessage `db:"content"`
	ToolCalls   json.RawMessage `db:"tool_calls"`
}

// ========================================
// 日志: 表 chat_logs (logger.DBHandler 写入)
// ========================================

// ChatLog 结构化日志条目。
type ChatLog struct {
	ID         int64     `db:"id" json:"id"`
	Ts         time.Time `db:"ts" json:"ts"`
	Level      string    `db:"level" json:"level"`
	Message    string    `db:"message" json:"message"`
	Component  string    `db:"component" json:"component"`
	SessionID  string    `db:"session_id" json:"session_id"`
	TurnID     string    `db:"turn_id" json:"turn_id"`
	CallID     string    `db:"call_id" json:"call_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ToolName   string    `db:"tool_name" json:"tool_name"`
	DurationMS *int      `db:"duration_ms" json:"duration_ms"`
	Extra      any       `db:"extra" json:"extra"`
}
