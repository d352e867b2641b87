package chatstate

import (
	"encoding/json"

	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// BeginCall 登记一个新的工具调用 (running) 并追加工具调用引用片段。
// id 已存在时忽略并返回 false。
func (m *AssistantMessage) BeginCall(id, name, args string) bool {
	if id == "" {
		logger.Warn("chatstate: tool call start without id ignored", logger.FieldToolName, name)
		return false
	}
	if m.ToolCalls == nil {
		m.ToolCalls = map[string]ToolCallState{}
	}
	if existing, ok := m.ToolCalls[id]; ok {
		logger.Warn("chatstate: duplicate tool call start ignored",
			logger.FieldCallID, id,
			logger.FieldToolName, name,
			logger.FieldStatus, string(existing.Status),
		)
		return false
	}
	m.ToolCalls[id] = ToolCallState{Name: name, Args: args, Status: ToolRunning}
	m.Content = append(m.Content, ToolCallRef(id))
	return true
}

// CompleteCall running → success。未知 id 或已终态的调用忽略, 返回 false。
func (m *AssistantMessage) CompleteCall(id string, result json.RawMessage, artifact *Artifact) bool {
	st, ok := m.runningCall(id, "result")
	if !ok {
		return false
	}
	st.Status = ToolSuccess
	st.Result = cloneRaw(result)
	st.Artifact = cloneArtifact(artifact)
	m.ToolCalls[id] = st
	return true
}

// FailCall running → error。前置条件同 CompleteCall。
func (m *AssistantMessage) FailCall(id, errMsg string) bool {
	st, ok := m.runningCall(id, "error")
	if !ok {
		return false
	}
	st.Status = ToolError
	st.Error = errMsg
	m.ToolCalls[id] = st
	return true
}

func (m *AssistantMessage) runningCall(id, event string) (ToolCallState, bool) {
	st, ok := m.ToolCalls[id]
	if !ok {
		logger.Debug("chatstate: tool call "+event+" for unknown id ignored", logger.FieldCallID, id)
		return ToolCallState{}, false
	}
	if st.Status != ToolRunning {
		logger.Debug("chatstate: late tool call "+event+" ignored",
			logger.FieldCallID, id,
			logger.FieldStatus, string(st.Status),
		)
		return ToolCallState{}, false
	}
	return st, true
}

// RunningCalls 返回仍在运行中的调用数。
func (m *AssistantMessage) RunningCalls() int {
	n := 0
	for _, st := range m.ToolCalls {
		if st.Status == ToolRunning {
			n++
		}
	}
	return n
}
