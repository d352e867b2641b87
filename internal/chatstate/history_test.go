package chatstate

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRehydrateTurns(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []TurnRecord{
		{
			ID:          "t1",
			Timestamp:   ts,
			UserMessage: "分析销售数据",
			Content: []ContentPart{
				TextPart("正在"), TextPart("分析..."), ToolCallRef("c1"),
				TextPart("**下一步建议**：\n"), TextPart("1. 检查缺失值\n2. 尝试新模型"),
			},
			ToolCalls: map[string]ToolCallState{
				"c1": {Name: "analyze_data", Args: "{}", Status: ToolSuccess, Result: json.RawMessage(`{"rows":10}`)},
			},
		},
		{ID: "t2", Timestamp: ts.Add(time.Minute), UserMessage: "再看看", Content: nil},
	}

	turns := RehydrateTurns(records)
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}

	a := turns[0].Assistant
	wantContent := []ContentPart{
		TextPart("正在分析..."), ToolCallRef("c1"),
		TextPart("**下一步建议**：\n1. 检查缺失值\n2. 尝试新模型"),
	}
	if !reflect.DeepEqual(a.Content, wantContent) {
		t.Errorf("content = %#v", a.Content)
	}
	if !reflect.DeepEqual(a.Suggestions, []string{"检查缺失值", "尝试新模型"}) {
		t.Errorf("suggestions = %q", a.Suggestions)
	}
	if a.Loading {
		t.Error("loading = true, want false")
	}
	if a.ToolCalls["c1"].Status != ToolSuccess || string(a.ToolCalls["c1"].Result) != `{"rows":10}` {
		t.Errorf("tool call = %#v", a.ToolCalls["c1"])
	}
	if turns[0].Timestamp != ts || turns[0].UserMessage != "分析销售数据" {
		t.Errorf("turn meta = %#v", turns[0])
	}

	empty := turns[1].Assistant
	if len(empty.Content) != 0 || len(empty.Suggestions) != 0 || empty.ToolCalls == nil {
		t.Errorf("empty turn = %#v", empty)
	}
}

func TestRehydrateDoesNotAliasRecords(t *testing.T) {
	records := []TurnRecord{{
		ID:        "t1",
		Content:   []ContentPart{TextPart("a")},
		ToolCalls: map[string]ToolCallState{"c1": {Status: ToolRunning, Result: json.RawMessage(`1`)}},
	}}
	turns := RehydrateTurns(records)
	records[0].Content[0].Text = "changed"
	records[0].ToolCalls["c1"].Result[0] = '2'

	if turns[0].Assistant.Content[0].Text != "a" {
		t.Error("content aliased")
	}
	if string(turns[0].Assistant.ToolCalls["c1"].Result) != "1" {
		t.Error("tool result aliased")
	}
	// 存储中的状态原样保留, 即使不是终态
	if turns[0].Assistant.ToolCalls["c1"].Status != ToolRunning {
		t.Error("tool status rewritten")
	}
}

func TestToRecordRoundTrip(t *testing.T) {
	turn := ConversationTurn{ID: "t1", UserMessage: "hi", Assistant: newAssistantMessage()}
	turn.Assistant.AppendText("下一步建议\n1. x")
	turn.Assistant.refreshSuggestions()

	back := RehydrateTurns([]TurnRecord{turn.ToRecord()})[0]
	if !reflect.DeepEqual(back.Assistant.Suggestions, []string{"x"}) {
		t.Fatalf("suggestions = %q", back.Assistant.Suggestions)
	}
}
