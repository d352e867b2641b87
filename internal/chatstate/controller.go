package chatstate

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
	"github.com/datalab-agent/analyst-go/pkg/logger"
	"github.com/datalab-agent/analyst-go/pkg/util"
)

const (
	defaultWatchdogTimeout = 30 * time.Second
	defaultFetchTimeout    = 10 * time.Second

	streamErrorPrefix = "\n\n处理出错: "
	apologyText       = "抱歉，发送消息时出现了问题，请稍后重试。"
	watchdogStatus    = "分析耗时较长，流程面板已标记完成，继续等待结果"
)

// Options 控制器可选配置, 零值可用。
type Options struct {
	WatchdogTimeout time.Duration
	FetchTimeout    time.Duration
	Model           string
	Notifier        Notifier
	Archiver        TurnArchiver
	Now             func() time.Time
	NewID           func() string
}

// Controller 单会话流式对话控制器。
//
// 同一时刻至多一个轮次处于 AwaitingResponse / Streaming。每个轮次绑定一个
// generation, 过期轮次的事件与看门狗回调一律丢弃。
type Controller struct {
	streamer Streamer
	sessions SessionAPI
	flow     recoverFlow
	notifier Notifier
	archiver TurnArchiver

	watchdogTimeout time.Duration
	fetchTimeout    time.Duration
	now             func() time.Time
	newID           func() string

	mu          sync.Mutex // 保护以下字段
	state       State
	lastOutcome State
	gen         uint64
	loadSeq     uint64
	version     uint64
	turns       []ConversationTurn
	sessionID   string
	sessionName string
	datasetID   string
	model       string
	route       string
	step        int
	watchdog    *time.Timer

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New 创建控制器。flow 为 nil 时使用 NopFlow; sessions 为 nil 时不做标题同步和历史加载。
func New(streamer Streamer, sessions SessionAPI, flow FlowAdapter, opts Options) *Controller {
	if flow == nil {
		flow = NopFlow{}
	}
	c := &Controller{
		streamer:        streamer,
		sessions:        sessions,
		flow:            recoverFlow{next: flow},
		notifier:        opts.Notifier,
		archiver:        opts.Archiver,
		watchdogTimeout: opts.WatchdogTimeout,
		fetchTimeout:    opts.FetchTimeout,
		now:             opts.Now,
		newID:           opts.NewID,
		state:           StateIdle,
		model:           strings.TrimSpace(opts.Model),
		turns:           []ConversationTurn{},
		subs:            map[int]func(Snapshot){},
	}
	if c.watchdogTimeout <= 0 {
		c.watchdogTimeout = defaultWatchdogTimeout
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = defaultFetchTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// ========================================
// 观察
// ========================================

// Snapshot 返回当前状态的深拷贝。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// IsProcessing 是否有进行中的轮次。
func (c *Controller) IsProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.InFlight()
}

// Subscribe 注册状态变更回调, 返回取消函数。
//
// 回调在锁外执行, 多个 goroutine 的变更可能乱序送达, 以 Version 为准。
// 同一快照在订阅者之间共享, 订阅者不得修改。
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Version:      c.version,
		SessionID:    c.sessionID,
		SessionName:  c.sessionName,
		DatasetID:    c.datasetID,
		Model:        c.model,
		Route:        c.route,
		State:        c.state,
		LastOutcome:  c.lastOutcome,
		IsProcessing: c.state.InFlight(),
		Turns:        cloneTurns(c.turns),
	}
}

// update 在锁内执行 fn; fn 返回 true 时版本号 +1, 并在锁外推送快照。
// fn panic 时锁照常释放, panic 继续向上传递。
func (c *Controller) update(fn func() bool) {
	if snap, changed := c.mutate(fn); changed {
		c.publish(snap)
	}
}

func (c *Controller) mutate(fn func() bool) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !fn() {
		return Snapshot{}, false
	}
	c.version++
	return c.snapshotLocked(), true
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) notify(level NoticeLevel, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Notice{Level: level, Message: message})
}

// ========================================
// 会话选择
// ========================================

// SelectSession 切换当前会话与数据集。切换到其他会话时清空对话。
func (c *Controller) SelectSession(sessionID, datasetID string) error {
	const op = "Controller.SelectSession"
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, op, "session id is required")
	}
	var busy bool
	c.update(func() bool {
		if c.state.InFlight() {
			busy = true
			return false
		}
		if sid != c.sessionID {
			c.sessionID = sid
			c.sessionName = ""
			c.turns = []ConversationTurn{}
			c.lastOutcome = ""
			c.route = ""
		}
		c.datasetID = strings.TrimSpace(datasetID)
		return true
	})
	if busy {
		return apperrors.Wrap(apperrors.ErrBusy, op, "turn in flight")
	}
	return nil
}

// SetModel 设置下一轮使用的模型。
func (c *Controller) SetModel(model string) {
	m := strings.TrimSpace(model)
	if m == "" {
		return
	}
	c.update(func() bool {
		if c.model == m {
			return false
		}
		c.model = m
		return true
	})
}

// RenameSession 先更新本地名称, 再异步同步到服务端; 同步失败只记录日志。
func (c *Controller) RenameSession(ctx context.Context, name string) error {
	const op = "Controller.RenameSession"
	n := strings.TrimSpace(name)
	if n == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, op, "name is required")
	}
	var sid string
	c.update(func() bool {
		sid = c.sessionID
		if sid == "" {
			return false
		}
		c.sessionName = n
		return true
	})
	if sid == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, op, "no session selected")
	}
	if c.sessions == nil {
		return nil
	}
	util.SafeGo(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		if err := c.sessions.UpdateSessionName(rctx, sid, n); err != nil {
			logger.Warn("chatstate: session rename sync failed",
				logger.FieldSessionID, sid,
				logger.FieldName, n,
				logger.FieldError, err,
			)
		}
	})
	return nil
}

// ========================================
// 发送
// ========================================

// SendMessage 发起新一轮对话。
//
// 空消息、上一轮未结束、未选择会话/数据集时直接拒绝且不改动对话;
// 否则立即追加本轮 (loading=true), 选择流程路线, 启动看门狗并打开流。
// 打开流失败 (含 panic) 时追加致歉文本并结束本轮。
func (c *Controller) SendMessage(ctx context.Context, text string) (err error) {
	const op = "Controller.SendMessage"
	msg := strings.TrimSpace(text)
	if msg == "" {
		c.notify(NoticeWarning, "请输入消息内容")
		return apperrors.Wrap(apperrors.ErrEmptyMessage, op, "message is empty")
	}

	var (
		req      ChatRequest
		gen      uint64
		rejected error
		opened   bool
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("chatstate: send panicked",
				logger.FieldTurnID, req.TurnID,
				logger.FieldError, r,
				"stack", string(debug.Stack()),
			)
			err = apperrors.Wrapf(apperrors.ErrInternal, op, "send panicked: %v", r)
		}
		// gen 非零表示本轮已追加, 未成功打开流时必须收尾
		if gen != 0 && !opened {
			c.abortTurn(gen, err)
		}
	}()
	c.update(func() bool {
		if c.state.InFlight() {
			rejected = apperrors.Wrap(apperrors.ErrBusy, op, "turn in flight")
			return false
		}
		if c.sessionID == "" || c.datasetID == "" {
			rejected = apperrors.Wrap(apperrors.ErrNoDataset, op, "session or dataset not selected")
			return false
		}
		c.gen++
		gen = c.gen
		turn := ConversationTurn{
			ID:          c.newID(),
			Timestamp:   c.now(),
			UserMessage: msg,
			Assistant:   newAssistantMessage(),
		}
		c.turns = append(c.turns, turn)
		c.state = StateAwaitingResponse
		c.lastOutcome = ""

		c.flow.ClearFlowSteps()
		c.route = c.flow.AutoSelectRoute(msg)
		c.step = 0
		c.flow.UpdateRouteStep(0, StepActive)
		c.armWatchdogLocked(gen)

		req = ChatRequest{
			SessionID: c.sessionID,
			DatasetID: c.datasetID,
			TurnID:    turn.ID,
			Model:     c.model,
			Route:     c.route,
			Message:   msg,
		}
		return true
	})
	switch {
	case apperrors.Is(rejected, apperrors.ErrBusy):
		logger.Warn("chatstate: send rejected, still processing")
		c.notify(NoticeWarning, "上一条消息仍在处理中，请稍候")
		return rejected
	case rejected != nil:
		logger.Warn("chatstate: send rejected, no dataset selected")
		c.notify(NoticeWarning, "请先选择会话和数据集")
		return rejected
	}

	logger.Info("chatstate: turn started",
		logger.FieldSessionID, req.SessionID,
		logger.FieldTurnID, req.TurnID,
		logger.FieldGen, gen,
		logger.FieldRoute, req.Route,
	)

	if openErr := c.streamer.Open(ctx, req, &turnHandler{c: c, gen: gen}); openErr != nil {
		return apperrors.Wrap(openErr, op, "open stream")
	}
	opened = true
	return nil
}

// turnHandler 绑定到单个 generation 的流事件处理器。
type turnHandler struct {
	c   *Controller
	gen uint64
}

func (h *turnHandler) OnTextDelta(chunk string) {
	h.c.onEvent(h.gen, "text_delta", func(msg *AssistantMessage) {
		msg.AppendText(chunk)
		msg.refreshSuggestions()
	})
}

func (h *turnHandler) OnToolCallStart(id, name, args string) {
	h.c.onEvent(h.gen, "tool_call_start", func(msg *AssistantMessage) {
		if msg.BeginCall(id, name, args) {
			h.c.advanceStepLocked()
		}
	})
}

func (h *turnHandler) OnToolCallResult(id string, result json.RawMessage, artifact *Artifact) {
	h.c.onEvent(h.gen, "tool_call_result", func(msg *AssistantMessage) {
		msg.CompleteCall(id, result, artifact)
	})
}

func (h *turnHandler) OnToolCallError(id, errMsg string) {
	h.c.onEvent(h.gen, "tool_call_error", func(msg *AssistantMessage) {
		msg.FailCall(id, errMsg)
	})
}

func (h *turnHandler) OnComplete() { h.c.finishTurn(h.gen, false, "") }

func (h *turnHandler) OnStreamError(message string) { h.c.finishTurn(h.gen, true, message) }

var _ StreamHandler = (*turnHandler)(nil)

// onEvent 处理非终止事件。首个事件把状态推进到 Streaming。
func (c *Controller) onEvent(gen uint64, eventType string, apply func(msg *AssistantMessage)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("chatstate: stream event panicked",
				logger.FieldEventType, eventType,
				logger.FieldGen, gen,
				logger.FieldError, r,
				"stack", string(debug.Stack()),
			)
			c.finishTurn(gen, true, fmt.Sprintf("内部错误: %v", r))
		}
	}()
	c.update(func() bool {
		if !c.activeLocked(gen) || c.state == StateFinalizing {
			logger.Debug("chatstate: stale stream event dropped",
				logger.FieldEventType, eventType,
				logger.FieldGen, gen,
			)
			return false
		}
		if c.state == StateAwaitingResponse {
			c.state = StateStreaming
			c.advanceStepLocked()
		}
		apply(c.activeMessageLocked())
		return true
	})
}

// finishTurn 终止事件: 停止看门狗 → Finalizing → Completed / Failed → Idle。
func (c *Controller) finishTurn(gen uint64, failed bool, streamErr string) {
	var (
		applied   bool
		reconcile bool
		sessionID string
		datasetID string
		turn      ConversationTurn
	)
	c.update(func() bool {
		if !c.activeLocked(gen) {
			logger.Debug("chatstate: stale terminal event dropped", logger.FieldGen, gen)
			return false
		}
		c.stopWatchdogLocked()
		c.state = StateFinalizing
		msg := c.activeMessageLocked()
		msg.Loading = false
		if failed {
			msg.appendSeparatePart(streamErrorPrefix + streamErr)
			c.flow.UpdateRouteStep(c.step, StepError)
			c.finishLocked(StateFailed)
		} else {
			c.flow.UpdateRouteStep(AllSteps, StepCompleted)
			c.finishLocked(StateCompleted)
		}
		applied = true
		reconcile = !failed && len(c.turns) == 1
		sessionID = c.sessionID
		datasetID = c.datasetID
		turn = cloneTurns(c.turns[len(c.turns)-1:])[0]
		return true
	})
	if !applied {
		return
	}
	if failed {
		logger.Warn("chatstate: turn failed",
			logger.FieldSessionID, sessionID,
			logger.FieldTurnID, turn.ID,
			logger.FieldError, streamErr,
		)
		c.notify(NoticeError, "处理出错: "+streamErr)
	} else {
		logger.Info("chatstate: turn completed",
			logger.FieldSessionID, sessionID,
			logger.FieldTurnID, turn.ID,
			logger.FieldCount, len(turn.Assistant.ToolCalls),
		)
	}
	c.afterTurn(sessionID, datasetID, turn, reconcile)
}

// abortTurn 打开流失败时结束本轮。
func (c *Controller) abortTurn(gen uint64, cause error) {
	var (
		applied   bool
		sessionID string
		datasetID string
		turn      ConversationTurn
	)
	c.update(func() bool {
		if !c.activeLocked(gen) {
			return false
		}
		c.stopWatchdogLocked()
		c.state = StateFinalizing
		msg := c.activeMessageLocked()
		msg.appendSeparatePart(apologyText)
		msg.Loading = false
		c.flow.UpdateRouteStep(c.step, StepError)
		c.finishLocked(StateFailed)
		applied = true
		sessionID = c.sessionID
		datasetID = c.datasetID
		turn = cloneTurns(c.turns[len(c.turns)-1:])[0]
		return true
	})
	if !applied {
		return
	}
	logger.Error("chatstate: send failed",
		logger.FieldSessionID, sessionID,
		logger.FieldTurnID, turn.ID,
		logger.FieldError, cause,
	)
	c.notify(NoticeError, "发送失败，请稍后重试")
	c.afterTurn(sessionID, datasetID, turn, false)
}

func (c *Controller) activeLocked(gen uint64) bool {
	return gen == c.gen && c.state.InFlight() && len(c.turns) > 0
}

func (c *Controller) activeMessageLocked() *AssistantMessage {
	return &c.turns[len(c.turns)-1].Assistant
}

func (c *Controller) finishLocked(outcome State) {
	c.lastOutcome = outcome
	c.state = StateIdle
}

// advanceStepLocked 完成当前步骤并激活下一步; 已在最后一步时保持不动。
func (c *Controller) advanceStepLocked() {
	if n := c.flow.StepCount(); n >= 0 && c.step >= n-1 {
		return
	}
	c.flow.UpdateRouteStep(c.step, StepCompleted)
	c.step++
	c.flow.UpdateRouteStep(c.step, StepActive)
}

// ========================================
// 看门狗
// ========================================

func (c *Controller) armWatchdogLocked(gen uint64) {
	c.stopWatchdogLocked()
	c.watchdog = time.AfterFunc(c.watchdogTimeout, func() { c.onWatchdog(gen) })
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// onWatchdog 只推进流程面板, 不取消网络调用, 轮次继续等待终止事件。
func (c *Controller) onWatchdog(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || (c.state != StateAwaitingResponse && c.state != StateStreaming) {
		return
	}
	c.watchdog = nil
	c.flow.UpdateRouteStep(AllSteps, StepCompleted)
	c.flow.LogRouteStatus(watchdogStatus)
	logger.Warn("chatstate: watchdog fired, still waiting for stream",
		logger.FieldSessionID, c.sessionID,
		logger.FieldGen, gen,
		logger.FieldState, string(c.state),
	)
}

// ========================================
// 轮次结束后的异步任务
// ========================================

// afterTurn 归档本轮, 首轮完成时再拉取会话元数据同步服务端标题。
func (c *Controller) afterTurn(sessionID, datasetID string, turn ConversationTurn, reconcile bool) {
	reconcile = reconcile && c.sessions != nil
	if c.archiver == nil && !reconcile {
		return
	}
	util.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()
		if c.archiver != nil {
			if err := c.archiver.AppendTurn(ctx, sessionID, datasetID, turn.ToRecord()); err != nil {
				logger.Warn("chatstate: archive turn failed",
					logger.FieldSessionID, sessionID,
					logger.FieldTurnID, turn.ID,
					logger.FieldError, err,
				)
			}
		}
		if reconcile {
			c.reconcileTitle(ctx, sessionID)
		}
	})
}

func (c *Controller) reconcileTitle(ctx context.Context, sessionID string) {
	rec, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		logger.Warn("chatstate: session title reconcile failed",
			logger.FieldSessionID, sessionID,
			logger.FieldError, err,
		)
		return
	}
	name := ""
	if rec != nil {
		name = strings.TrimSpace(rec.Name)
	}
	// 本地已有名称 (用户重命名) 时以本地为准, 并重新同步到服务端
	var local string
	c.update(func() bool {
		if c.sessionID != sessionID {
			return false
		}
		if c.sessionName != "" {
			local = c.sessionName
			return false
		}
		if name == "" {
			return false
		}
		c.sessionName = name
		return true
	})
	if local == "" || local == name {
		return
	}
	if err := c.sessions.UpdateSessionName(ctx, sessionID, local); err != nil {
		logger.Warn("chatstate: session rename resync failed",
			logger.FieldSessionID, sessionID,
			logger.FieldName, local,
			logger.FieldError, err,
		)
	}
}

// ========================================
// 历史
// ========================================

// LoadHistory 从服务端加载会话历史并重建对话。进行中的轮次存在时拒绝。
// 拉取失败记录日志, 对话保持为空。
func (c *Controller) LoadHistory(ctx context.Context, sessionID string) error {
	const op = "Controller.LoadHistory"
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, op, "session id is required")
	}
	var (
		busy bool
		seq  uint64
	)
	c.update(func() bool {
		if c.state.InFlight() {
			busy = true
			return false
		}
		if sid != c.sessionID {
			c.sessionName = ""
			c.datasetID = ""
		}
		c.sessionID = sid
		c.turns = []ConversationTurn{}
		c.lastOutcome = ""
		c.route = ""
		c.loadSeq++
		seq = c.loadSeq
		return true
	})
	if busy {
		c.notify(NoticeWarning, "上一条消息仍在处理中，请稍候")
		return apperrors.Wrap(apperrors.ErrBusy, op, "turn in flight")
	}
	if c.sessions == nil {
		return apperrors.New(op, "session api not configured")
	}

	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	rec, err := c.sessions.GetSession(fctx, sid)
	if err != nil {
		logger.Warn("chatstate: load history failed",
			logger.FieldSessionID, sid,
			logger.FieldError, err,
		)
		return apperrors.Wrap(err, op, "fetch session")
	}
	if rec == nil {
		return apperrors.Wrap(apperrors.ErrNotFound, op, "session not found")
	}

	turns := RehydrateTurns(rec.ChatHistory)
	c.update(func() bool {
		if c.sessionID != sid || c.loadSeq != seq || c.state.InFlight() || len(c.turns) > 0 {
			logger.Info("chatstate: history superseded, dropped", logger.FieldSessionID, sid)
			return false
		}
		c.turns = turns
		c.sessionName = strings.TrimSpace(rec.Name)
		if rec.DatasetID != "" {
			c.datasetID = rec.DatasetID
		}
		return true
	})
	logger.Info("chatstate: history loaded",
		logger.FieldSessionID, sid,
		logger.FieldCount, len(turns),
	)
	return nil
}
