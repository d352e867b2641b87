package chatstate

import (
	"regexp"
	"strings"
)

var (
	// 标题归一化后 (去掉空白、强调符、连字符和冒号) 的匹配形式。
	suggestionHeadingRe = regexp.MustCompile(`^(?:nextsteps?suggestions?|下一步建议)$`)
	numberedItemRe      = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
	headingNoise        = strings.NewReplacer(
		" ", "", "\t", "", "*", "", "_", "", "#", "", "-", "",
		":", "", "：", "", ">", "",
	)
)

// ExtractSuggestions 从完整文本中提取 "下一步建议" 列表。
//
// 未找到标题时返回空切片。找到后跳到第一个 "N. xxx" 行开始收集,
// 遇到空行或非编号行停止; 第一个编号行之前出现新的 "#" 标题则视为没有建议。编号本身不校验 ("1. a\n1. b" 两项都保留)。
// 每次调用都从头计算, 可在流式文本增长过程中反复调用。
func ExtractSuggestions(text string) []string {
	out := []string{}
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if isSuggestionHeading(line) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return out
	}

	inList := false
	for _, raw := range lines[start:] {
		line := strings.TrimRight(raw, "\r")
		m := numberedItemRe.FindStringSubmatch(line)
		if m == nil {
			// 列表已结束, 或在列表出现前遇到了下一个 markdown 标题
			if inList || strings.HasPrefix(strings.TrimSpace(line), "#") {
				break
			}
			continue
		}
		inList = true
		if item := strings.TrimSpace(m[1]); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isSuggestionHeading(line string) bool {
	norm := strings.ToLower(headingNoise.Replace(strings.TrimSpace(line)))
	if norm == "" {
		return false
	}
	return suggestionHeadingRe.MatchString(norm)
}

// refreshSuggestions 基于当前全文重新计算建议。
func (m *AssistantMessage) refreshSuggestions() {
	m.Suggestions = ExtractSuggestions(m.FullText())
}
