package util

import "strings"

// TruncateRunes 按 rune 截断字符串 (中文安全), 超出部分以 "…" 结尾。
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "…"
}
