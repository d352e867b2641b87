package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestApplyAttrStructuredFields(t *testing.T) {
	e := &LogEntry{}
	applyAttr(e, slog.String(FieldSessionID, "s-1"))
	applyAttr(e, slog.String(FieldTurnID, "t-1"))
	applyAttr(e, slog.String(FieldCallID, "c1"))
	applyAttr(e, slog.String(FieldToolName, "analyze_data"))
	applyAttr(e, slog.String("custom", "v"))

	if e.SessionID != "s-1" || e.TurnID != "t-1" || e.CallID != "c1" || e.ToolName != "analyze_data" {
		t.Fatalf("structured fields not mapped: %+v", e)
	}
	if e.Extra["custom"] != "v" {
		t.Fatalf("extra = %v, want custom=v", e.Extra)
	}
}

func TestApplyAttrDurationMS(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want int
	}{
		{"int64", slog.Int64(FieldDurationMS, 42), 42},
		{"int", slog.Any(FieldDurationMS, int(100)), 100},
		{"float64", slog.Any(FieldDurationMS, float64(99.7)), 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &LogEntry{}
			applyAttr(e, tt.attr)
			if e.DurationMS == nil || *e.DurationMS != tt.want {
				t.Fatalf("DurationMS = %v, want %d", e.DurationMS, tt.want)
			}
		})
	}
}

func TestDBHandler_FlushOnShutdown(t *testing.T) {
	var mu sync.Mutex
	var got []LogEntry
	h := newDBHandler(func(_ context.Context, e LogEntry) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	}, slog.LevelWarn)

	l := slog.New(h).With(FieldSessionID, "s-9")
	l.Info("dropped by level")
	l.Warn("watchdog fired", FieldTurnID, "t-1")
	h.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].SessionID != "s-9" || got[0].TurnID != "t-1" || got[0].Message != "watchdog fired" {
		t.Fatalf("entry = %+v", got[0])
	}
}

func TestDBHandler_HandleAfterShutdownIsNoop(t *testing.T) {
	h := newDBHandler(func(context.Context, LogEntry) error { return nil }, slog.LevelInfo)
	h.Shutdown()
	h.Shutdown()

	r := slog.NewRecord(time.Now(), slog.LevelError, "late", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle after shutdown: %v", err)
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	warnOnly := newDBHandler(func(context.Context, LogEntry) error { return nil }, slog.LevelWarn)
	defer warnOnly.Shutdown()
	m := NewMultiHandler(warnOnly)
	if m.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled")
	}
	if !m.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled")
	}
}
