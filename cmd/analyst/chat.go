package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/datalab-agent/analyst-go/internal/app"
	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/render"
)

const chatHelp = `/rename <名称>  修改会话标题
/model <模型>   切换模型
/history        重新显示本会话记录
/quit           退出`

type chatOptions struct {
	sessionID string
	datasetID string
	model     string
	resume    bool
}

func chatCmd(cfg *config.Config) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "在终端中与分析助手对话",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "会话 id (默认新建)")
	cmd.Flags().StringVar(&opts.datasetID, "dataset", "", "数据集 id (必填)")
	cmd.Flags().StringVar(&opts.model, "model", "", "覆盖 AGENT_MODEL")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "先加载会话历史")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, opts chatOptions, in io.Reader, out io.Writer) error {
	printer := render.NewPrinter(out)
	rt, err := app.Build(ctx, cfg, app.Options{Migrate: true, Notifier: printer})
	if err != nil {
		return err
	}
	defer rt.Close()
	ctrl := rt.Controller

	sessionID := opts.sessionID
	if sessionID == "" {
		if rt.Sessions != nil {
			sess, err := rt.Sessions.Create(ctx, "", opts.datasetID)
			if err != nil {
				return err
			}
			sessionID = sess.ID
		} else {
			sessionID = uuid.NewString()
		}
	}
	if opts.resume {
		if err := ctrl.LoadHistory(ctx, sessionID); err != nil {
			return err
		}
		turns := ctrl.Snapshot().Turns
		render.Transcript(out, turns)
		printer.MarkSeen(turns)
	}
	if err := ctrl.SelectSession(sessionID, opts.datasetID); err != nil {
		return err
	}
	if opts.model != "" {
		ctrl.SetModel(opts.model)
	}
	unsubscribe := ctrl.Subscribe(printer.OnSnapshot)
	defer unsubscribe()

	snap := ctrl.Snapshot()
	fmt.Fprintf(out, "session %s · dataset %s · model %s  (/help)\n", snap.SessionID, snap.DatasetID, snap.Model)

	lines := readLines(ctx, in)
	for {
		fmt.Fprint(out, "› ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, ctrl, line, out)
			if err != nil {
				fmt.Fprintln(out, err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := ctrl.SendMessage(ctx, line); err != nil {
			// 提示已由 Notifier 输出
			continue
		}
		turns := ctrl.Snapshot().Turns
		if err := waitTurn(ctx, printer, turns[len(turns)-1].ID); err != nil {
			return nil
		}
	}
}

// chatCommand 处理斜杠命令, 返回是否退出。
func chatCommand(ctx context.Context, ctrl *chatstate.Controller, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/rename":
		if err := ctrl.RenameSession(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(out, render.Success("renamed to %s", arg))
	case "/model":
		if arg == "" {
			return false, fmt.Errorf("usage: /model <name>")
		}
		ctrl.SetModel(arg)
		fmt.Fprintln(out, render.Success("model %s", arg))
	case "/history":
		render.Transcript(out, ctrl.Snapshot().Turns)
	default:
		return false, fmt.Errorf("unknown command %s (/help)", name)
	}
	return false, nil
}

// waitTurn 等待指定轮次结束。
func waitTurn(ctx context.Context, p *render.Printer, turnID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-p.Finished:
			if id == turnID {
				return nil
			}
		}
	}
}

// readLines 在独立 goroutine 中读取输入, EOF 时关闭 channel。
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
