// Package chatstate 流式对话会话状态机: 文本片段合并、下一步建议提取、
// 工具调用登记、单轮流式控制与历史会话回放。
package chatstate

import (
	"encoding/json"
	"time"
)

// PartKind 内容片段类型。
type PartKind string

const (
	PartText     PartKind = "text"
	PartToolCall PartKind = "toolCall"
)

// ContentPart 助手消息的原子内容: 一段文本或一个工具调用引用。
type ContentPart struct {
	Kind   PartKind `json:"kind"`
	Text   string   `json:"text,omitempty"`
	CallID string   `json:"callId,omitempty"`
}

// TextPart 构造文本片段。
func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// ToolCallRef 构造工具调用引用片段。
func ToolCallRef(callID string) ContentPart {
	return ContentPart{Kind: PartToolCall, CallID: callID}
}

// IsText 是否文本片段。
func (p ContentPart) IsText() bool { return p.Kind == PartText }

// ToolStatus 工具调用状态。running 为初始态, success / error 为终态。
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// Terminal 是否终态。
func (s ToolStatus) Terminal() bool { return s == ToolSuccess || s == ToolError }

// Artifact 工具调用附带的渲染载荷 (目前只有 image)。
type Artifact struct {
	Type    string `json:"type"`
	Data    string `json:"data"`
	Caption string `json:"caption,omitempty"`
}

// ToolCallState 单个工具调用的生命周期状态。
type ToolCallState struct {
	Name     string          `json:"name"`
	Args     string          `json:"args"`
	Status   ToolStatus      `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Artifact *Artifact       `json:"artifact,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AssistantMessage 一轮对话中的助手回复。
type AssistantMessage struct {
	Content     []ContentPart            `json:"content"`
	ToolCalls   map[string]ToolCallState `json:"toolCalls"`
	Loading     bool                     `json:"loading"`
	Suggestions []string                 `json:"suggestions"`
}

func newAssistantMessage() AssistantMessage {
	return AssistantMessage{
		Content:     []ContentPart{},
		ToolCalls:   map[string]ToolCallState{},
		Loading:     true,
		Suggestions: []string{},
	}
}

// ConversationTurn 一条用户消息 + 对应的助手回复。
type ConversationTurn struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	UserMessage string           `json:"userMessage"`
	Assistant   AssistantMessage `json:"assistant"`
}

// State 会话控制器状态。
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateStreaming        State = "streaming"
	StateFinalizing       State = "finalizing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// InFlight 是否有进行中的轮次。
func (s State) InFlight() bool {
	return s == StateAwaitingResponse || s == StateStreaming || s == StateFinalizing
}

// Snapshot 渲染层可见的会话状态 (深拷贝, 调用方可自由修改)。
type Snapshot struct {
	Version      uint64             `json:"version"`
	SessionID    string             `json:"sessionId"`
	SessionName  string             `json:"sessionName"`
	DatasetID    string             `json:"datasetId"`
	Model        string             `json:"model"`
	Route        string             `json:"route,omitempty"`
	State        State              `json:"state"`
	LastOutcome  State              `json:"lastOutcome,omitempty"`
	IsProcessing bool               `json:"isProcessing"`
	Turns        []ConversationTurn `json:"turns"`
}

// NoticeLevel 用户提示级别。
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice 面向用户的提示消息。
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}
