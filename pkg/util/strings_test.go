package util

import "testing"

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"分析销售数据", 10, "分析销售数据"},
		{"分析销售数据的季度趋势", 4, "分析销售…"},
		{"  padded  ", 10, "padded"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.limit); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
