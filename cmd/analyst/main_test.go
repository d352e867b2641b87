package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/datalab-agent/analyst-go/internal/agentclient"
	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/config"
)

func init() { color.NoColor = true }

// lockedBuffer 供 Printer 回调与主循环并发写入。
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("POSTGRES_CONNECTION_STRING", "")
	t.Setenv("FLOW_RULES_PATH", "")
	t.Setenv("LOG_DIR", "")
	return config.Load()
}

func TestGlobalFlagsApply(t *testing.T) {
	cfg := &config.Config{LogLevel: "info", AgentWSURL: "ws://a", PostgresConnStr: "pg://a"}
	globalFlags{agentURL: "ws://b"}.apply(cfg)
	if cfg.AgentWSURL != "ws://b" {
		t.Errorf("AgentWSURL = %q", cfg.AgentWSURL)
	}
	if cfg.LogLevel != "info" || cfg.PostgresConnStr != "pg://a" {
		t.Errorf("empty flags should not override: %+v", cfg)
	}

	globalFlags{logLevel: "debug", dbURL: "pg://b"}.apply(cfg)
	if cfg.LogLevel != "debug" || cfg.PostgresConnStr != "pg://b" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	want := map[string]string{
		"serve":      "run",
		"chat":       "run",
		"mock-agent": "run",
		"history":    "data",
		"sessions":   "data",
		"migrate":    "data",
	}
	for name, group := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("command %q not registered", name)
			continue
		}
		if cmd.GroupID != group {
			t.Errorf("%s group = %q, want %q", name, cmd.GroupID, group)
		}
	}
	if f := root.PersistentFlags().Lookup("agent-url"); f == nil {
		t.Error("missing --agent-url")
	}
}

func TestChatRequiresDataset(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"chat"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "dataset") {
		t.Fatalf("err = %v, want required flag error", err)
	}
}

func TestChatCommand(t *testing.T) {
	ctrl := chatstate.New(nil, nil, nil, chatstate.Options{Model: "m1"})
	var out bytes.Buffer

	tests := []struct {
		line    string
		quit    bool
		wantErr bool
	}{
		{line: "/help"},
		{line: "/model m2"},
		{line: "/model", wantErr: true},
		{line: "/rename 新名称", wantErr: true}, // 未选择会话
		{line: "/history"},
		{line: "/nope", wantErr: true},
		{line: "/quit", quit: true},
		{line: "/exit", quit: true},
	}
	for _, tt := range tests {
		quit, err := chatCommand(context.Background(), ctrl, tt.line, &out)
		if quit != tt.quit {
			t.Errorf("%s: quit = %v, want %v", tt.line, quit, tt.quit)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
	}
	if got := ctrl.Snapshot().Model; got != "m2" {
		t.Errorf("model = %q, want m2", got)
	}

	if err := ctrl.SelectSession("s1", "sales"); err != nil {
		t.Fatal(err)
	}
	if _, err := chatCommand(context.Background(), ctrl, "/rename 季度复盘", &out); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := ctrl.Snapshot().SessionName; got != "季度复盘" {
		t.Errorf("session name = %q", got)
	}
}

func TestRunChatAgainstMockAgent(t *testing.T) {
	agent := httptest.NewServer(agentclient.NewMockAgent(nil, 0))
	defer agent.Close()

	cfg := testConfig(t)
	cfg.AgentWSURL = "ws" + strings.TrimPrefix(agent.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &lockedBuffer{}
	in := strings.NewReader("\n看看销售趋势\n/quit\n")
	opts := chatOptions{datasetID: "sales", model: "demo"}
	if err := runChat(ctx, cfg, opts, in, out); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("chat loop did not finish before timeout")
	}

	got := out.String()
	for _, want := range []string{"dataset sales", "model demo", "助手 › ", "analyze_data", "检查缺失值"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
