package chatstate

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestMergeTextRuns(t *testing.T) {
	cases := []struct {
		name string
		in   []ContentPart
		want []ContentPart
	}{
		{"empty", nil, []ContentPart{}},
		{"single text", []ContentPart{TextPart("a")}, []ContentPart{TextPart("a")}},
		{
			"adjacent text collapses",
			[]ContentPart{TextPart("正在"), TextPart("分析"), TextPart("...")},
			[]ContentPart{TextPart("正在分析...")},
		},
		{
			"tool call is barrier",
			[]ContentPart{TextPart("a"), TextPart("b"), ToolCallRef("c1"), TextPart("c"), TextPart("d")},
			[]ContentPart{TextPart("ab"), ToolCallRef("c1"), TextPart("cd")},
		},
		{
			"consecutive tool calls untouched",
			[]ContentPart{ToolCallRef("c1"), ToolCallRef("c2")},
			[]ContentPart{ToolCallRef("c1"), ToolCallRef("c2")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeTextRuns(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("MergeTextRuns = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestMergeTextRunsDoesNotMutateInput(t *testing.T) {
	in := []ContentPart{TextPart("a"), TextPart("b")}
	_ = MergeTextRuns(in)
	if in[0].Text != "a" || in[1].Text != "b" {
		t.Fatalf("input mutated: %#v", in)
	}
}

// randomParts 随机生成文本/工具调用混合序列。
func randomParts(r *rand.Rand) []ContentPart {
	n := r.Intn(12)
	parts := make([]ContentPart, 0, n)
	for i := 0; i < n; i++ {
		if r.Intn(4) == 0 {
			parts = append(parts, ToolCallRef("c"+string(rune('a'+i))))
			continue
		}
		parts = append(parts, TextPart(strings.Repeat("x", r.Intn(3))+"y"))
	}
	return parts
}

func concatText(parts []ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func TestMergeTextRunsProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		in := randomParts(r)
		once := MergeTextRuns(in)

		for j := 1; j < len(once); j++ {
			if once[j].IsText() && once[j-1].IsText() {
				t.Fatalf("adjacent text parts at %d in %#v", j, once)
			}
		}
		if concatText(once) != concatText(in) {
			t.Fatalf("text changed: %q vs %q", concatText(once), concatText(in))
		}
		if twice := MergeTextRuns(once); !reflect.DeepEqual(twice, once) {
			t.Fatalf("not idempotent: %#v vs %#v", twice, once)
		}
	}
}

func TestAppendTextIncremental(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		msg := newAssistantMessage()
		var all strings.Builder
		for j := 0; j < 20; j++ {
			if r.Intn(5) == 0 {
				msg.BeginCall("call-"+string(rune('a'+j)), "tool", "{}")
				continue
			}
			chunk := strings.Repeat("字", r.Intn(3))
			all.WriteString(chunk)
			msg.AppendText(chunk)
		}
		for j := 1; j < len(msg.Content); j++ {
			if msg.Content[j].IsText() && msg.Content[j-1].IsText() {
				t.Fatalf("adjacent text parts after incremental append: %#v", msg.Content)
			}
		}
		if got := concatText(msg.Content); got != all.String() {
			t.Fatalf("concat = %q, want %q", got, all.String())
		}
	}
}

func TestJoinText(t *testing.T) {
	parts := []ContentPart{TextPart("a"), TextPart("b"), ToolCallRef("c1"), TextPart("c")}
	if got := JoinText(parts); got != "ab\nc" {
		t.Fatalf("JoinText = %q, want %q", got, "ab\nc")
	}
	if got := JoinText([]ContentPart{ToolCallRef("c1")}); got != "" {
		t.Fatalf("JoinText(tool only) = %q, want empty", got)
	}
}
