package chatstate

import (
	"context"
	"encoding/json"
	"time"
)

// StreamHandler 流式调用的事件回调。每个逻辑事件至多回调一次;
// OnComplete 与 OnStreamError 互斥, 且为该次调用的终止事件。
type StreamHandler interface {
	OnTextDelta(chunk string)
	OnToolCallStart(id, name, args string)
	OnToolCallResult(id string, result json.RawMessage, artifact *Artifact)
	OnToolCallError(id, errMsg string)
	OnComplete()
	OnStreamError(message string)
}

// ChatRequest 一轮对话的请求参数。
type ChatRequest struct {
	SessionID string `json:"session_id"`
	DatasetID string `json:"dataset_id"`
	TurnID    string `json:"turn_id"`
	Model     string `json:"model,omitempty"`
	Route     string `json:"route,omitempty"`
	Message   string `json:"message"`
}

// Streamer 打开一次流式调用。调用建立后即返回, 事件随后经 handler 异步送达。
// 返回 error 时不会再有任何回调。
type Streamer interface {
	Open(ctx context.Context, req ChatRequest, h StreamHandler) error
}

// TurnRecord 持久化的一轮对话。
type TurnRecord struct {
	ID          string                   `json:"id"`
	Timestamp   time.Time                `json:"timestamp"`
	UserMessage string                   `json:"user_message"`
	Content     []ContentPart            `json:"content"`
	ToolCalls   map[string]ToolCallState `json:"tool_calls"`
}

// SessionRecord 服务端会话元数据 + 历史。
type SessionRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DatasetID   string       `json:"dataset_id"`
	ChatHistory []TurnRecord `json:"chat_history"`
}

// SessionAPI 会话元数据接口。
type SessionAPI interface {
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateSessionName(ctx context.Context, id, name string) error
}

// TurnArchiver 持久化已结束的轮次 (可选)。datasetID 为本轮所用数据集。
type TurnArchiver interface {
	AppendTurn(ctx context.Context, sessionID, datasetID string, rec TurnRecord) error
}

// Notifier 向用户展示提示。
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc 函数适配器。
type NotifierFunc func(Notice)

// Notify 实现 Notifier。
func (f NotifierFunc) Notify(n Notice) { f(n) }
