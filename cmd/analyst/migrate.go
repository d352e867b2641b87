package main

import (
	"github.com/spf13/cobra"

	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/database"
	"github.com/datalab-agent/analyst-go/internal/render"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir != "" {
				cfg.MigrationsDir = dir
			}
			pool, err := database.NewPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := database.Migrate(cmd.Context(), pool, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			cmd.Println(render.Success("migrations applied: %d", applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "迁移目录 (默认 MIGRATIONS_DIR)")
	return cmd
}
