// cmd/migrate: 执行 migrations 目录下的 SQL 迁移。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/database"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

func main() {
	app.LoadEnvFile("")
	cfg := config.Load()
	logger.Init(cfg.AppEnv, cfg.LogLevel)

	if len(os.Args) > 1 {
		cfg.MigrationsDir = os.Args[1]
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := database.Migrate(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed after %d file(s): %v\n", applied, err)
		pool.Close()
		os.Exit(1)
	}
	fmt.Printf("Migration complete, %d file(s) applied.\n", applied)
}
