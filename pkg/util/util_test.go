// util_test.go: EscapeLike / ClampInt / LoadFromEnv 表驱动测试。
package util

import "testing"

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"percent", "100%", `100\%`},
		{"underscore", "a_b", `a\_b`},
		{"backslash", `a\b`, `a\\b`},
		{"combined", `%_\`, `\%\_\\`},
		{"no_special", "hello", "hello"},
		{"empty", "", ""},
		{"multiple_percent", "%%", `\%\%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeLike(tt.in)
			if got != tt.want {
				t.Errorf("EscapeLike(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		name      string
		v, lo, hi int
		want      int
	}{
		{"below_min", -1, 0, 10, 0},
		{"above_max", 20, 0, 10, 10},
		{"in_range", 5, 0, 10, 5},
		{"at_min", 0, 0, 10, 0},
		{"at_max", 10, 0, 10, 10},
		{"negative_range", -5, -10, -1, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampInt(tt.v, tt.lo, tt.hi)
			if got != tt.want {
				t.Errorf("ClampInt(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	type cfg struct {
		Name    string  `env:"UTIL_TEST_NAME" default:"analyst"`
		Timeout int     `env:"UTIL_TEST_TIMEOUT" default:"30" min:"1"`
		Ratio   float64 `env:"UTIL_TEST_RATIO" default:"0.5" min:"0"`
		Enabled bool    `env:"UTIL_TEST_ENABLED" default:"true"`
		Skipped string
	}

	var c cfg
	LoadFromEnv(&c)
	if c.Name != "analyst" || c.Timeout != 30 || c.Ratio != 0.5 || !c.Enabled {
		t.Fatalf("defaults not applied: %+v", c)
	}

	t.Setenv("UTIL_TEST_TIMEOUT", "0")
	t.Setenv("UTIL_TEST_ENABLED", "off")
	t.Setenv("UTIL_TEST_NAME", "other")
	c = cfg{}
	LoadFromEnv(&c)
	if c.Timeout != 1 {
		t.Errorf("Timeout = %d, want clamped to 1", c.Timeout)
	}
	if c.Enabled {
		t.Error("Enabled = true, want false")
	}
	if c.Name != "other" {
		t.Errorf("Name = %q, want other", c.Name)
	}
}

func TestLoadFromEnv_NonPointerIsIgnored(t *testing.T) {
	LoadFromEnv(nil)
	LoadFromEnv(struct{}{})
}
