// clone.go: 会话状态深拷贝工具函数。
package chatstate

import "encoding/json"

func cloneTurns(src []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, len(src))
	for i, t := range src {
		out[i] = ConversationTurn{
			ID:          t.ID,
			Timestamp:   t.Timestamp,
			UserMessage: t.UserMessage,
			Assistant:   cloneAssistant(t.Assistant),
		}
	}
	return out
}

func cloneAssistant(src AssistantMessage) AssistantMessage {
	out := AssistantMessage{
		Content:     append(make([]ContentPart, 0, len(src.Content)), src.Content...),
		ToolCalls:   make(map[string]ToolCallState, len(src.ToolCalls)),
		Loading:     src.Loading,
		Suggestions: append(make([]string, 0, len(src.Suggestions)), src.Suggestions...),
	}
	for id, st := range src.ToolCalls {
		out.ToolCalls[id] = cloneToolCall(st)
	}
	return out
}

func cloneToolCall(src ToolCallState) ToolCallState {
	src.Result = cloneRaw(src.Result)
	src.Artifact = cloneArtifact(src.Artifact)
	return src
}

func cloneRaw(src json.RawMessage) json.RawMessage {
	if src == nil {
		return nil
	}
	return append(json.RawMessage(nil), src...)
}

func cloneArtifact(src *Artifact) *Artifact {
	if src == nil {
		return nil
	}
	a := *src
	return &a
}
