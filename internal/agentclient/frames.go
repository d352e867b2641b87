package agentclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
)

// FrameKind 归一化后的帧类型。
type FrameKind string

const (
	FrameTextDelta  FrameKind = "text_delta"
	FrameToolStart  FrameKind = "tool_call_start"
	FrameToolResult FrameKind = "tool_call_result"
	FrameToolError  FrameKind = "tool_call_error"
	FrameComplete   FrameKind = "complete"
	FrameError      FrameKind = "error"
	FrameIgnore     FrameKind = "ignore"
)

// Terminal 是否终止帧。
func (k FrameKind) Terminal() bool { return k == FrameComplete || k == FrameError }

// wireFrame 后端发送的原始帧: {"type": "...", "data": {...}}。
type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame 归一化后的事件。
type Frame struct {
	Kind     FrameKind
	Type     string // 原始 type
	Text     string
	CallID   string
	Name     string
	Args     string
	Result   json.RawMessage
	Artifact *chatstate.Artifact
	Error    string
}

// NormalizeFrame 解析并归一化一条后端消息。
//
// 纯函数, 无状态。未知类型归为 FrameIgnore。
func NormalizeFrame(raw []byte) (Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(raw, &wf); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	f := Frame{Kind: classifyFrame(wf.Type), Type: wf.Type}

	payload := map[string]json.RawMessage{}
	if len(wf.Data) > 0 && wf.Data[0] == '{' {
		if err := json.Unmarshal(wf.Data, &payload); err != nil {
			return Frame{}, fmt.Errorf("decode frame data (%s): %w", wf.Type, err)
		}
	}

	switch f.Kind {
	case FrameTextDelta:
		// data 可以直接是字符串
		if s, ok := rawString(wf.Data); ok {
			f.Text = s
		} else {
			f.Text = firstString(payload, "content", "delta", "text")
		}
	case FrameToolStart:
		f.CallID = firstString(payload, "id", "call_id", "tool_call_id")
		f.Name = firstString(payload, "name", "tool", "tool_name")
		f.Args = argsString(payload)
	case FrameToolResult:
		f.CallID = firstString(payload, "id", "call_id", "tool_call_id")
		f.Result = firstRaw(payload, "result", "output")
		f.Artifact = parseArtifact(payload)
	case FrameToolError:
		f.CallID = firstString(payload, "id", "call_id", "tool_call_id")
		f.Error = firstString(payload, "error", "message")
	case FrameError:
		if s, ok := rawString(wf.Data); ok {
			f.Error = s
		} else {
			f.Error = firstString(payload, "message", "error", "detail")
		}
		if f.Error == "" {
			f.Error = "unknown stream error"
		}
	}
	return f, nil
}

// classifyFrame 按原始 type 分类, 兼容历史别名。
func classifyFrame(frameType string) FrameKind {
	switch strings.ToLower(strings.TrimSpace(frameType)) {
	case "text_delta", "delta", "text", "content", "message_delta":
		return FrameTextDelta
	case "tool_call_start", "tool_start", "tool_call":
		return FrameToolStart
	case "tool_call_result", "tool_result", "tool_end":
		return FrameToolResult
	case "tool_call_error", "tool_error":
		return FrameToolError
	case "done", "complete", "completed", "end", "stream_end":
		return FrameComplete
	case "error", "stream_error":
		return FrameError
	}
	return FrameIgnore
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func firstString(payload map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s, ok := rawString(payload[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstRaw(payload map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := payload[k]; ok && len(v) > 0 {
			return v
		}
	}
	return nil
}

// argsString 参数对象原样序列化为字符串; 已是字符串时直接使用。
func argsString(payload map[string]json.RawMessage) string {
	raw := firstRaw(payload, "args", "arguments", "input")
	if raw == nil {
		return "{}"
	}
	if s, ok := rawString(raw); ok {
		return s
	}
	return string(raw)
}

func parseArtifact(payload map[string]json.RawMessage) *chatstate.Artifact {
	if raw := firstRaw(payload, "artifact"); raw != nil {
		var a chatstate.Artifact
		if err := json.Unmarshal(raw, &a); err == nil && a.Data != "" {
			if a.Type == "" {
				a.Type = "image"
			}
			return &a
		}
	}
	// 兼容只返回 image 字段 (base64) 的旧格式
	if img := firstString(payload, "image"); img != "" {
		return &chatstate.Artifact{Type: "image", Data: img, Caption: firstString(payload, "caption")}
	}
	return nil
}

// dispatch 把归一化帧转成 handler 回调, 返回是否为终止帧。
func dispatch(h chatstate.StreamHandler, f Frame) bool {
	switch f.Kind {
	case FrameTextDelta:
		h.OnTextDelta(f.Text)
	case FrameToolStart:
		h.OnToolCallStart(f.CallID, f.Name, f.Args)
	case FrameToolResult:
		h.OnToolCallResult(f.CallID, f.Result, f.Artifact)
	case FrameToolError:
		h.OnToolCallError(f.CallID, f.Error)
	case FrameComplete:
		h.OnComplete()
		return true
	case FrameError:
		h.OnStreamError(f.Error)
		return true
	}
	return false
}

// requestFrame 客户端发出的首帧。
type requestFrame struct {
	Type string                `json:"type"`
	Data chatstate.ChatRequest `json:"data"`
}
