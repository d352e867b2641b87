// sse.go: SSE 事件总线 + handler。
package dashboard

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/flowpanel"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// SSE 事件类型。
const (
	EventSnapshot = "snapshot"
	EventFlow     = "flow"
	EventNotice   = "notice"
	EventPing     = "ping"
)

// EventBus 事件总线 (SSE 推送)。订阅者 channel 满时丢弃事件。
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	dropped     atomic.Int64
}

// Event SSE 事件。
type Event struct {
	Type string
	Data any
}

// NewEventBus 创建事件总线。
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]chan Event)}
}

// Publish 广播事件。
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishSnapshot 推送控制器快照。
func (b *EventBus) PublishSnapshot(snap chatstate.Snapshot) {
	b.Publish(Event{Type: EventSnapshot, Data: snap})
}

// PublishFlow 推送流程面板状态, 可直接作为 flowpanel.Options.OnChange。
func (b *EventBus) PublishFlow(state flowpanel.State) {
	b.Publish(Event{Type: EventFlow, Data: state})
}

// Notifier 返回把提示推送到总线的 chatstate.Notifier。
func (b *EventBus) Notifier() chatstate.Notifier {
	return chatstate.NotifierFunc(func(n chatstate.Notice) {
		b.Publish(Event{Type: EventNotice, Data: n})
	})
}

// Dropped 返回因订阅者积压而丢弃的事件数。
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

// Subscribe 订阅。
func (b *EventBus) Subscribe(id string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	b.subscribers[id] = ch
	return ch
}

// Unsubscribe 取消订阅。
//
// 不关闭 ch, sseHandler 通过 ctx.Done() 退出。
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// sseHandler Gin SSE handler。连接建立后先推送当前快照与流程面板状态。
func (s *Server) sseHandler(c *gin.Context) {
	clientID := fmt.Sprintf("sse-%d", time.Now().UnixNano())
	ch := s.bus.Subscribe(clientID)
	defer func() {
		s.bus.Unsubscribe(clientID)
		logger.Info("dashboard: SSE client disconnected", "client_id", clientID)
	}()

	logger.Info("dashboard: SSE client connected", "client_id", clientID)

	c.SSEvent(EventSnapshot, s.deps.Chat.Snapshot())
	if s.deps.Flow != nil {
		c.SSEvent(EventFlow, s.deps.Flow.Snapshot())
	}
	c.Writer.Flush()

	interval := s.deps.KeepAlive
	keepalive := time.NewTimer(interval)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt.Data)
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(interval)
			return true
		case <-keepalive.C:
			c.SSEvent(EventPing, "keepalive")
			keepalive.Reset(interval)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
