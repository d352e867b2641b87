package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
)

// Printer 把控制器快照渲染为终端上的流式增量输出。
//
// 内容片段只追加: 已输出的片段不再重绘, 仅最后一个文本片段可能继续增长。
// 本轮结束时输出工具调用汇总与建议, 并在 Finished 上送出轮次 id。
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	version  uint64
	turnID   string
	done     int // 已完整输出的片段数
	partial  int // content[done] 已输出的字节数
	finished map[string]bool

	// Finished 每个结束的轮次送出一次 id (缓冲满时丢弃)。
	Finished chan string
}

// NewPrinter 创建输出器。
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, finished: map[string]bool{}, Finished: make(chan string, 16)}
}

// MarkSeen 标记已展示过的轮次 (如加载的历史), 之后的快照不再重复输出它们。
func (p *Printer) MarkSeen(turns []chatstate.ConversationTurn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range turns {
		p.finished[t.ID] = true
	}
}

// Notify 实现 chatstate.Notifier。
func (p *Printer) Notify(n chatstate.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	Notice(p.out, n)
}

// OnSnapshot 订阅回调; 旧版本快照被忽略。
func (p *Printer) OnSnapshot(snap chatstate.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Version <= p.version || len(snap.Turns) == 0 {
		return
	}
	p.version = snap.Version

	turn := snap.Turns[len(snap.Turns)-1]
	if p.finished[turn.ID] {
		return
	}
	if turn.ID != p.turnID {
		p.turnID, p.done, p.partial = turn.ID, 0, 0
		fmt.Fprint(p.out, assistantLabel("助手 › "))
	}

	content := turn.Assistant.Content
	for i := p.done; i < len(content); i++ {
		part := content[i]
		last := i == len(content)-1
		if part.IsText() {
			text := part.Text
			if i == p.done && p.partial <= len(text) {
				text = text[p.partial:]
			}
			fmt.Fprint(p.out, text)
			if last {
				p.done, p.partial = i, len(part.Text)
				break
			}
		} else {
			writePart(p.out, part, turn.Assistant.ToolCalls)
		}
		p.done, p.partial = i+1, 0
	}

	if turn.Assistant.Loading {
		return
	}
	p.finished[turn.ID] = true
	fmt.Fprintln(p.out)
	footer(p.out, turn.Assistant)
	select {
	case p.Finished <- turn.ID:
	default:
	}
}
