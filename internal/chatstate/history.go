package chatstate

// RehydrateTurns 由持久化记录重建对话: 合并文本片段、重新提取建议,
// 工具调用状态按存储原样保留。建议从不持久化。
func RehydrateTurns(records []TurnRecord) []ConversationTurn {
	out := make([]ConversationTurn, 0, len(records))
	for _, rec := range records {
		msg := AssistantMessage{
			Content:   MergeTextRuns(rec.Content),
			ToolCalls: make(map[string]ToolCallState, len(rec.ToolCalls)),
			Loading:   false,
		}
		for id, st := range rec.ToolCalls {
			msg.ToolCalls[id] = cloneToolCall(st)
		}
		msg.refreshSuggestions()
		out = append(out, ConversationTurn{
			ID:          rec.ID,
			Timestamp:   rec.Timestamp,
			UserMessage: rec.UserMessage,
			Assistant:   msg,
		})
	}
	return out
}

// ToRecord 转换为持久化记录 (不含建议)。
func (t ConversationTurn) ToRecord() TurnRecord {
	a := cloneAssistant(t.Assistant)
	return TurnRecord{
		ID:          t.ID,
		Timestamp:   t.Timestamp,
		UserMessage: t.UserMessage,
		Content:     a.Content,
		ToolCalls:   a.ToolCalls,
	}
}
