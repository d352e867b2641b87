package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalab-agent/analyst-go/internal/agentclient"
	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/flowpanel"
	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("POSTGRES_CONNECTION_STRING", "")
	t.Setenv("FLOW_RULES_PATH", "")
	t.Setenv("LOG_DIR", "")
	return config.Load()
}

func TestBuildWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if rt.Pool != nil || rt.Sessions != nil || rt.Logs != nil {
		t.Fatal("persistence should be disabled")
	}
	if rt.Controller == nil || rt.Panel == nil || rt.Agent == nil {
		t.Fatal("runtime not fully assembled")
	}
	if got := rt.Controller.Snapshot().Model; got != cfg.AgentModel {
		t.Errorf("model = %q, want %q", got, cfg.AgentModel)
	}

	gin.SetMode(gin.TestMode)
	srv := rt.DashboardServer("")
	defer srv.Close()
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("/api/sessions code = %d, want 503", w.Code)
	}

	// 无 SessionAPI 时加载历史返回错误而不是 panic
	if err := rt.Controller.LoadHistory(context.Background(), "s1"); err == nil {
		t.Fatal("LoadHistory without persistence should fail")
	}
}

func TestBuildRequireDB(t *testing.T) {
	cfg := testConfig(t)
	_, err := Build(context.Background(), cfg, Options{RequireDB: true})
	if !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuildBadFlowRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlowRulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Build(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestRuntimeAgainstMockAgent(t *testing.T) {
	agent := httptest.NewServer(agentclient.NewMockAgent(nil, 0))
	defer agent.Close()

	cfg := testConfig(t)
	cfg.AgentWSURL = "ws" + strings.TrimPrefix(agent.URL, "http")

	var (
		mu       sync.Mutex
		notices  []chatstate.Notice
		flowSeen int
	)
	rt, err := Build(context.Background(), cfg, Options{
		Notifier: chatstate.NotifierFunc(func(n chatstate.Notice) {
			mu.Lock()
			notices = append(notices, n)
			mu.Unlock()
		}),
		OnFlow: func(flowpanel.State) {
			mu.Lock()
			flowSeen++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	// 未选择会话: 提示同时送达额外 Notifier
	if err := rt.Controller.SendMessage(context.Background(), "hi"); !apperrors.Is(err, apperrors.ErrNoDataset) {
		t.Fatalf("err = %v, want ErrNoDataset", err)
	}

	if err := rt.Controller.SelectSession("s1", "sales"); err != nil {
		t.Fatal(err)
	}
	if err := rt.Controller.SendMessage(context.Background(), "看看销售趋势"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rt.Controller.IsProcessing() {
		if time.Now().After(deadline) {
			t.Fatal("turn did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := rt.Controller.Snapshot()
	if snap.LastOutcome != chatstate.StateCompleted {
		t.Fatalf("outcome = %q", snap.LastOutcome)
	}
	msg := snap.Turns[0].Assistant
	if want := []string{"检查缺失值", "尝试建立预测模型"}; !reflect.DeepEqual(msg.Suggestions, want) {
		t.Errorf("suggestions = %v, want %v", msg.Suggestions, want)
	}
	if call := msg.ToolCalls["call-1"]; call.Status != chatstate.ToolSuccess {
		t.Errorf("tool call = %+v", call)
	}
	panel := rt.Panel.Snapshot()
	for _, step := range panel.Steps {
		if step.Status != chatstate.StepCompleted {
			t.Errorf("step %q = %s, want completed", step.Name, step.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 1 || notices[0].Level != chatstate.NoticeWarning {
		t.Errorf("notices = %+v", notices)
	}
	if flowSeen == 0 {
		t.Error("OnFlow never called")
	}
}

func TestFanoutNotifierSkipsNil(t *testing.T) {
	var got []string
	a := chatstate.NotifierFunc(func(n chatstate.Notice) { got = append(got, "a:"+n.Message) })
	b := chatstate.NotifierFunc(func(n chatstate.Notice) { got = append(got, "b:"+n.Message) })
	fanoutNotifier(a, nil, b).Notify(chatstate.Notice{Message: "x"})
	if want := []string{"a:x", "b:x"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// ========================================
// .env
// ========================================

func TestLoadEnvFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join([]string{
		"# comment",
		"ANALYST_TEST_A=1",
		"export ANALYST_TEST_B=\"quoted value\"",
		"ANALYST_TEST_KEEP=from-file",
		"not a pair",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// t.Setenv 负责测试结束后恢复; 随后 Unsetenv 模拟未设置
	for _, k := range []string{"ANALYST_TEST_A", "ANALYST_TEST_B"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("ANALYST_TEST_KEEP", "from-env")

	if n := LoadEnvFile(nested); n != 2 {
		t.Fatalf("LoadEnvFile set %d vars, want 2", n)
	}
	if v := os.Getenv("ANALYST_TEST_A"); v != "1" {
		t.Errorf("A = %q", v)
	}
	if v := os.Getenv("ANALYST_TEST_B"); v != "quoted value" {
		t.Errorf("B = %q", v)
	}
	if v := os.Getenv("ANALYST_TEST_KEEP"); v != "from-env" {
		t.Errorf("KEEP = %q, existing env must win", v)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if n := LoadEnvFile(t.TempDir()); n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

// ========================================
// build info
// ========================================

func TestResolveBuildInfo(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		builtAt     string
		rev         string
		vcsTime     string
		modified    bool
		wantVersion string
		wantCommit  string
		wantTime    string
	}{
		{"ldflags win", "1.2.0", "abc", "2026-01-02T03:04:05Z", "ffffffffffffffff", "", false, "1.2.0", "abc", "2026-01-02 03:04:05 UTC"},
		{"vcs fallback", "dev", "unknown", "", "0123456789abcdef", "2026-03-04T05:06:07Z", true, "dev+0123456789ab-dirty", "0123456789ab-dirty", "2026-03-04 05:06:07 UTC"},
		{"nothing known", "", "", "", "", "", false, "dev", "unknown", "unknown"},
		{"unparsable time kept", "dev", "x", "yesterday", "", "", false, "dev", "x", "yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveBuildInfo(tt.version, tt.commit, tt.builtAt, tt.rev, tt.vcsTime, tt.modified)
			if got.Version != tt.wantVersion || got.Commit != tt.wantCommit || got.BuildTime != tt.wantTime {
				t.Errorf("got %+v, want %s/%s/%s", got, tt.wantVersion, tt.wantCommit, tt.wantTime)
			}
			if got.Runtime == "" {
				t.Error("runtime empty")
			}
		})
	}
}
