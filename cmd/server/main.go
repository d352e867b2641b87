// cmd/server: Dashboard HTTP + SSE 主入口。
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

func main() {
	staticDir := flag.String("static", "", "静态前端目录 (可选)")
	migrate := flag.Bool("migrate", true, "启动时执行数据库迁移")
	flag.Parse()

	app.LoadEnvFile("")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	app.InitLogging(cfg)
	info := app.CurrentBuildInfo()
	logger.Info("build info",
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
		"runtime", info.Runtime,
	)

	rt, err := app.Build(ctx, cfg, app.Options{Migrate: *migrate})
	if err != nil {
		logger.Fatal("server: init failed", logger.FieldError, err)
	}
	defer rt.Close()

	srv := rt.DashboardServer(*staticDir)
	defer srv.Close()

	if err := srv.Serve(ctx, cfg.HTTPListen); err != nil {
		logger.Error("server: stopped with error", logger.FieldError, err)
	}
	logger.Info("server: shutting down")
}
