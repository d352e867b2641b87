// Package render 终端输出: 对话记录、流式增量、提示与会话列表。
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/store"
)

var (
	userLabel      = color.New(color.FgGreen, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	toolColor      = color.New(color.FgYellow).SprintFunc()
	dim            = color.New(color.FgHiBlack).SprintFunc()
	heading        = color.New(color.FgMagenta, color.Bold).SprintFunc()
)

// Success 绿色 ✓ 前缀的单行消息。
func Success(format string, args ...any) string {
	return color.GreenString("✓ ") + fmt.Sprintf(format, args...)
}

// Notice 按级别着色输出提示。
func Notice(w io.Writer, n chatstate.Notice) {
	switch n.Level {
	case chatstate.NoticeError:
		fmt.Fprintln(w, color.RedString("✗ "+n.Message))
	case chatstate.NoticeWarning:
		fmt.Fprintln(w, color.YellowString("! "+n.Message))
	default:
		fmt.Fprintln(w, dim("· "+n.Message))
	}
}

// Transcript 输出完整对话记录。
func Transcript(w io.Writer, turns []chatstate.ConversationTurn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, dim("(暂无对话)"))
		return
	}
	for _, turn := range turns {
		userLine(w, turn)
		fmt.Fprint(w, assistantLabel("助手 › "))
		for _, part := range turn.Assistant.Content {
			writePart(w, part, turn.Assistant.ToolCalls)
		}
		fmt.Fprintln(w)
		footer(w, turn.Assistant)
		fmt.Fprintln(w)
	}
}

// Sessions 输出会话列表。
func Sessions(w io.Writer, items []store.ChatSession) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return
	}
	fmt.Fprintln(w, color.CyanString("Sessions"))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, s := range items {
		name := s.Name
		if name == "" {
			name = dim("(未命名)")
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n", dim(s.UpdatedAt.Format("2006-01-02 15:04")), s.ID, toolColor(s.DatasetID), name)
	}
}

func userLine(w io.Writer, turn chatstate.ConversationTurn) {
	fmt.Fprintf(w, "%s %s %s\n", dim(turn.Timestamp.Format("15:04:05")), userLabel("你 ›"), turn.UserMessage)
}

func writePart(w io.Writer, part chatstate.ContentPart, calls map[string]chatstate.ToolCallState) {
	if part.IsText() {
		fmt.Fprint(w, part.Text)
		return
	}
	call := calls[part.CallID]
	fmt.Fprintf(w, "\n%s\n", toolColor(fmt.Sprintf("⚙ %s(%s)", call.Name, call.Args)))
}

// footer 输出工具调用结果与下一步建议。
func footer(w io.Writer, msg chatstate.AssistantMessage) {
	ids := make([]string, 0, len(msg.ToolCalls))
	for id := range msg.ToolCalls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		call := msg.ToolCalls[id]
		switch call.Status {
		case chatstate.ToolSuccess:
			line := color.GreenString("  ✓ ") + call.Name
			if len(call.Result) > 0 {
				line += dim(" → " + truncate(string(call.Result), 80))
			}
			fmt.Fprintln(w, line)
			if a := call.Artifact; a != nil {
				fmt.Fprintln(w, dim(fmt.Sprintf("    [%s artifact] %s", a.Type, a.Caption)))
			}
		case chatstate.ToolError:
			fmt.Fprintln(w, color.RedString("  ✗ ")+call.Name+": "+call.Error)
		default:
			fmt.Fprintln(w, dim("  … "+call.Name))
		}
	}
	if len(msg.Suggestions) > 0 {
		fmt.Fprintln(w, heading("下一步建议"))
		for i, s := range msg.Suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, s)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
