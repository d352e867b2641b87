package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/render"
	"github.com/datalab-agent/analyst-go/internal/store"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// openSessionStore 打开数据库并返回会话存储与释放函数。
func openSessionStore(ctx context.Context, cfg *config.Config) (*store.SessionStore, func(), error) {
	pool, err := app.OpenDatabase(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		logger.ShutdownDBHandler()
		pool.Close()
	}
	return store.NewSessionStore(pool, cfg.SessionTitleMaxRunes), release, nil
}

func historyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "显示会话历史",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, release, err := openSessionStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			rec, err := sessions.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			name := rec.Name
			if name == "" {
				name = "(未命名)"
			}
			cmd.Printf("%s · %s · dataset %s\n\n", rec.ID, name, rec.DatasetID)
			render.Transcript(cmd.OutOrStdout(), chatstate.RehydrateTurns(rec.ChatHistory))
			return nil
		},
	}
}

func sessionsCmd(cfg *config.Config) *cobra.Command {
	var p store.SessionListParams
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "列出会话",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, release, err := openSessionStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			items, err := sessions.List(cmd.Context(), p)
			if err != nil {
				return err
			}
			render.Sessions(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.DatasetID, "dataset", "", "按数据集过滤")
	cmd.Flags().StringVarP(&p.Keyword, "keyword", "k", "", "按名称 / id 关键词过滤")
	cmd.Flags().IntVarP(&p.Limit, "limit", "n", 50, "最多返回条数")
	return cmd
}
