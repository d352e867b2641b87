// Package flowpanel 流程面板: 按消息选择处理路线, 并把流式进度投影为步骤状态。
// 面板只维护自己的投影, 不读写对话内容。
package flowpanel

import (
	"strings"
	"sync"
	"time"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

const maxLogs = 50

// DefaultRoutes 内置路线与步骤。
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		RouteQuickAnalysis: {"理解问题", "读取数据", "执行分析", "生成结论"},
		RouteModeling:      {"理解问题", "数据预处理", "特征工程", "模型训练", "模型评估", "生成报告"},
	}
}

// Step 单个步骤。
type Step struct {
	Name   string               `json:"name"`
	Status chatstate.StepStatus `json:"status"`
}

// State 面板快照。
type State struct {
	Route     string    `json:"route"`
	Steps     []Step    `json:"steps"`
	Logs      []string  `json:"logs"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Options 面板配置。
type Options struct {
	Classifier Classifier
	Routes     map[string][]string
	// OnChange 每次状态变化后在锁外调用, 不得阻塞。
	OnChange func(State)
}

// Panel 实现 chatstate.FlowAdapter。
type Panel struct {
	classifier Classifier
	routes     map[string][]string
	onChange   func(State)

	mu    sync.Mutex
	state State
}

var _ chatstate.FlowAdapter = (*Panel)(nil)

// New 创建面板。Routes 中的条目覆盖同名内置路线。
func New(opts Options) *Panel {
	routes := DefaultRoutes()
	for id, steps := range opts.Routes {
		if len(steps) > 0 {
			routes[id] = append([]string(nil), steps...)
		}
	}
	cls := opts.Classifier
	if cls == nil {
		cls = DefaultClassifier()
	}
	return &Panel{
		classifier: cls,
		routes:     routes,
		onChange:   opts.OnChange,
		state:      State{Steps: []Step{}, Logs: []string{}},
	}
}

// NewFromFile 从规则文件创建面板; path 为空时使用内置规则。
func NewFromFile(path string, onChange func(State)) (*Panel, error) {
	if strings.TrimSpace(path) == "" {
		return New(Options{OnChange: onChange}), nil
	}
	rf, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return New(Options{Classifier: rf.Classifier(), Routes: rf.Routes, OnChange: onChange}), nil
}

// Snapshot 返回面板状态副本。
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneState(p.state)
}

// AutoSelectRoute 选择路线并把全部步骤重置为 pending。
func (p *Panel) AutoSelectRoute(message string) string {
	route := p.classifier.Classify(message)
	steps, ok := p.routes[route]
	if !ok {
		logger.Warn("flowpanel: classifier returned unknown route, using default", logger.FieldRoute, route)
		route = RouteQuickAnalysis
		steps = p.routes[route]
	}
	p.mutate(func(s *State) bool {
		s.Route = route
		s.Steps = make([]Step, len(steps))
		for i, name := range steps {
			s.Steps[i] = Step{Name: name, Status: chatstate.StepPending}
		}
		return true
	})
	return route
}

// UpdateRouteStep 推进步骤状态。状态只前进 (pending → active → completed/error),
// 越界 index 忽略, chatstate.AllSteps 作用于所有未终结步骤。
func (p *Panel) UpdateRouteStep(index int, status chatstate.StepStatus) {
	p.mutate(func(s *State) bool {
		if index == chatstate.AllSteps {
			changed := false
			for i := range s.Steps {
				if advance(&s.Steps[i], status) {
					changed = true
				}
			}
			return changed
		}
		if index < 0 || index >= len(s.Steps) {
			logger.Debug("flowpanel: step index out of range", logger.FieldStep, index, logger.FieldRoute, s.Route)
			return false
		}
		return advance(&s.Steps[index], status)
	})
}

// StepCount 实现 chatstate.StepCounter, 返回当前路线的步骤数。
func (p *Panel) StepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.state.Steps)
}

var _ chatstate.StepCounter = (*Panel)(nil)

// ClearFlowSteps 清空路线、步骤和日志。
func (p *Panel) ClearFlowSteps() {
	p.mutate(func(s *State) bool {
		s.Route = ""
		s.Steps = []Step{}
		s.Logs = []string{}
		return true
	})
}

// LogRouteStatus 追加一条状态日志 (最多保留 maxLogs 条)。
func (p *Panel) LogRouteStatus(message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return
	}
	p.mutate(func(s *State) bool {
		s.Logs = append(s.Logs, msg)
		if len(s.Logs) > maxLogs {
			s.Logs = s.Logs[len(s.Logs)-maxLogs:]
		}
		return true
	})
}

func (p *Panel) mutate(fn func(s *State) bool) {
	snap, changed := p.apply(fn)
	if changed && p.onChange != nil {
		p.onChange(snap)
	}
}

func (p *Panel) apply(fn func(s *State) bool) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !fn(&p.state) {
		return State{}, false
	}
	p.state.UpdatedAt = time.Now()
	return cloneState(p.state), true
}

func rank(s chatstate.StepStatus) int {
	switch s {
	case chatstate.StepActive:
		return 1
	case chatstate.StepCompleted, chatstate.StepError:
		return 2
	default:
		return 0
	}
}

func advance(step *Step, status chatstate.StepStatus) bool {
	if rank(status) <= rank(step.Status) {
		return false
	}
	step.Status = status
	return true
}

func cloneState(s State) State {
	return State{
		Route:     s.Route,
		Steps:     append([]Step{}, s.Steps...),
		Logs:      append([]string{}, s.Logs...),
		UpdatedAt: s.UpdatedAt,
	}
}
