package chatstate

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractSuggestions(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			"bold chinese heading with full-width colon",
			"**下一步建议**：\n1. 检查缺失值\n2. 尝试新模型\n\n更多文字",
			[]string{"检查缺失值", "尝试新模型"},
		},
		{"no heading", "分析完成，相关系数为 0.8。\n1. 这不是建议", []string{}},
		{"empty", "", []string{}},
		{
			"markdown heading english",
			"Done.\n\n### Next Step Suggestions:\n\n1. Plot the residuals\n2.   Try log transform  \nThanks",
			[]string{"Plot the residuals", "Try log transform"},
		},
		{
			"plural and spacing tolerant",
			"__next-steps  suggestions__\n1. a\n2. b",
			[]string{"a", "b"},
		},
		{
			"numbering not validated",
			"下一步建议\n1. a\n1. b\n7. c",
			[]string{"a", "b", "c"},
		},
		{
			"later section list is not a suggestion",
			"下一步建议\n暂无明确建议。\n\n## 附录\n1. 原始字段说明\n2. 数据来源",
			[]string{},
		},
		{
			"stops at first non-numbered line",
			"下一步建议:\n1. a\n- bullet\n2. b",
			[]string{"a"},
		},
		{
			"intro lines before list are skipped",
			"下一步建议：\n你可以考虑：\n\n1. a\n2. b",
			[]string{"a", "b"},
		},
		{
			"heading without list",
			"下一步建议：\n暂无",
			[]string{},
		},
		{
			"crlf line endings",
			"下一步建议：\r\n1. a\r\n2. b\r\n\r\nend",
			[]string{"a", "b"},
		},
		{
			"heading mention inside sentence is not a heading",
			"稍后我会给出下一步建议。\n1. a",
			[]string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractSuggestions(tc.text)
			if got == nil {
				t.Fatal("ExtractSuggestions returned nil, want non-nil slice")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractSuggestions = %q, want %q", got, tc.want)
			}
		})
	}
}

// 流式文本逐字增长时, 每次调用都从头计算, 最终结果与一次性计算一致。
func TestExtractSuggestionsGrowingBuffer(t *testing.T) {
	full := "结论如下。\n\n**下一步建议**：\n1. 检查缺失值\n2. 尝试新模型\n\n更多文字"
	var last []string
	var b strings.Builder
	for _, r := range full {
		b.WriteRune(r)
		last = ExtractSuggestions(b.String())
	}
	want := []string{"检查缺失值", "尝试新模型"}
	if !reflect.DeepEqual(last, want) {
		t.Fatalf("final = %q, want %q", last, want)
	}
}
