package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

func TestDefaultLoggerConcurrentAccess(t *testing.T) {
	Init("production", "INFO")

	var wg sync.WaitGroup
	const goroutines = 100

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Info("concurrent log message", FieldSessionID, "s-1")
			_ = With(FieldTurnID, "t-1")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		Init("development", "DEBUG")
	}()

	wg.Wait()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{" debug ", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&discard{}, nil))
	ctx := WithContext(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Fatal("FromContext did not return injected logger")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext fallback returned nil")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
