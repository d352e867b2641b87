package chatstate

import "strings"

// MergeTextRuns 将连续的文本片段合并为一段, 工具调用引用原样保留并作为合并边界。
//
// 纯函数, 幂等: MergeTextRuns(MergeTextRuns(x)) == MergeTextRuns(x)。
func MergeTextRuns(parts []ContentPart) []ContentPart {
	out := make([]ContentPart, 0, len(parts))
	for _, p := range parts {
		if p.IsText() && len(out) > 0 && out[len(out)-1].IsText() {
			out[len(out)-1].Text += p.Text
			continue
		}
		out = append(out, p)
	}
	return out
}

// AppendText 流式追加文本: 末尾是文本片段时拼接, 否则新开一段。
func (m *AssistantMessage) AppendText(chunk string) {
	if chunk == "" {
		return
	}
	if n := len(m.Content); n > 0 && m.Content[n-1].IsText() {
		m.Content[n-1].Text += chunk
		return
	}
	m.Content = append(m.Content, TextPart(chunk))
}

// appendSeparatePart 追加独立文本片段 (不与前一段合并)。
func (m *AssistantMessage) appendSeparatePart(text string) {
	m.Content = append(m.Content, TextPart(text))
}

// JoinText 返回消息全部文本, 工具调用两侧的文本段以换行分隔。
func JoinText(parts []ContentPart) string {
	var b strings.Builder
	first := true
	for _, p := range MergeTextRuns(parts) {
		if !p.IsText() {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
		first = false
	}
	return b.String()
}

// FullText 返回助手消息的完整文本。
func (m *AssistantMessage) FullText() string { return JoinText(m.Content) }
