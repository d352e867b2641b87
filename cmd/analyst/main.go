// cmd/analyst: 数据分析对话助手命令行。
//
//	analyst serve        启动 dashboard (HTTP + SSE)
//	analyst chat         终端内对话
//	analyst history ID   查看会话历史
//	analyst sessions     列出会话
//	analyst migrate      执行数据库迁移
//	analyst mock-agent   启动演示用 agent 后端
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/config"
)

// globalFlags 根命令持久化参数, 非空时覆盖环境变量。
type globalFlags struct {
	envDir   string
	logLevel string
	agentURL string
	dbURL    string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags globalFlags
		cfg   = &config.Config{}
	)

	root := &cobra.Command{
		Use:           "analyst",
		Short:         "Streaming data-analysis chat assistant",
		Version:       app.CurrentBuildInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.LoadEnvFile(flags.envDir)
			*cfg = *config.Load()
			flags.apply(cfg)
			app.InitLogging(cfg)
		},
	}

	root.PersistentFlags().StringVar(&flags.envDir, "env-dir", "", "从该目录向上查找 .env (默认当前目录)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "覆盖 LOG_LEVEL")
	root.PersistentFlags().StringVar(&flags.agentURL, "agent-url", "", "覆盖 AGENT_WS_URL")
	root.PersistentFlags().StringVar(&flags.dbURL, "db", "", "覆盖 POSTGRES_CONNECTION_STRING")

	root.AddGroup(
		&cobra.Group{ID: "run", Title: "Run:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
	for _, c := range []*cobra.Command{serveCmd(cfg), chatCmd(cfg), mockAgentCmd()} {
		c.GroupID = "run"
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{historyCmd(cfg), sessionsCmd(cfg), migrateCmd(cfg)} {
		c.GroupID = "data"
		root.AddCommand(c)
	}
	return root
}

func (f globalFlags) apply(cfg *config.Config) {
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.agentURL != "" {
		cfg.AgentWSURL = f.agentURL
	}
	if f.dbURL != "" {
		cfg.PostgresConnStr = f.dbURL
	}
}
