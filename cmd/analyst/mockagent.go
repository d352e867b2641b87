package main

import (
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/datalab-agent/analyst-go/internal/agentclient"
)

const mockAgentPath = "/ws/chat"

func mockAgentCmd() *cobra.Command {
	var (
		listen string
		delay  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-agent",
		Short: "启动演示用 agent 后端 (WebSocket, 固定脚本)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle(mockAgentPath, agentclient.NewMockAgent(nil, delay))
			cmd.Printf("mock agent at ws://%s%s\n", ln.Addr(), mockAgentPath)
			return serveHTTP(cmd.Context(), &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}, ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8000", "监听地址")
	cmd.Flags().DurationVar(&delay, "delay", 80*time.Millisecond, "帧间隔")
	return cmd
}
