package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datalab-agent/analyst-go/internal/agentclient"
	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	var (
		listen    string
		staticDir string
		migrate   bool
		mockAddr  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 dashboard HTTP + SSE 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				cfg.HTTPListen = listen
			}
			return runServe(cmd.Context(), cfg, staticDir, migrate, mockAddr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "监听地址 (默认 HTTP_LISTEN)")
	cmd.Flags().StringVar(&staticDir, "static", "", "静态前端目录")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "启动时执行数据库迁移")
	cmd.Flags().StringVar(&mockAddr, "with-mock-agent", "", "同时在该地址启动演示 agent, 并将 AGENT_WS_URL 指向它")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, staticDir string, migrate bool, mockAddr string) error {
	g, gctx := errgroup.WithContext(ctx)

	if mockAddr != "" {
		ln, err := net.Listen("tcp", mockAddr)
		if err != nil {
			return err
		}
		cfg.AgentWSURL = "ws://" + ln.Addr().String() + mockAgentPath
		mux := http.NewServeMux()
		mux.Handle(mockAgentPath, agentclient.NewMockAgent(nil, 40*time.Millisecond))
		g.Go(func() error {
			return serveHTTP(gctx, &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}, ln)
		})
	}

	rt, err := app.Build(gctx, cfg, app.Options{Migrate: migrate})
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := rt.DashboardServer(staticDir)
	defer srv.Close()

	g.Go(func() error { return srv.Serve(gctx, cfg.HTTPListen) })
	return g.Wait()
}

// serveHTTP 在 ln 上服务直到 ctx 取消, 随后优雅关闭。
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("analyst: listening", logger.FieldAddr, ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
