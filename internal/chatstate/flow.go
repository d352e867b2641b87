package chatstate

import (
	"runtime/debug"

	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// StepStatus 流程面板步骤状态。
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// AllSteps 作为 UpdateRouteStep 的 index 时表示所有未终结的步骤。
const AllSteps = -1

// FlowAdapter 流程面板的能力接口。控制器仅把它当作旁路通知,
// 实现不得修改对话内容, 也不得回调控制器。
type FlowAdapter interface {
	// AutoSelectRoute 按用户消息选择处理路线, 返回路线 ID。
	AutoSelectRoute(message string) string
	UpdateRouteStep(index int, status StepStatus)
	ClearFlowSteps()
	LogRouteStatus(message string)
}

// NopFlow 空实现, 无界面时使用。
type NopFlow struct{}

func (NopFlow) AutoSelectRoute(string) string   { return "" }
func (NopFlow) UpdateRouteStep(int, StepStatus) {}
func (NopFlow) ClearFlowSteps()                 {}
func (NopFlow) LogRouteStatus(string)           {}

var _ FlowAdapter = NopFlow{}

// StepCounter 可选接口: 返回当前路线的步骤数。
// 实现它的 FlowAdapter 可让控制器把步骤推进限制在路线范围内。
type StepCounter interface {
	StepCount() int
}

// recoverFlow 包装 FlowAdapter, 吞掉实现中的 panic。
// 控制器在持锁状态下调用面板钩子, 面板故障不得影响对话状态。
type recoverFlow struct {
	next FlowAdapter
}

func (f recoverFlow) AutoSelectRoute(message string) (route string) {
	defer f.catch("AutoSelectRoute")
	return f.next.AutoSelectRoute(message)
}

func (f recoverFlow) UpdateRouteStep(index int, status StepStatus) {
	defer f.catch("UpdateRouteStep")
	f.next.UpdateRouteStep(index, status)
}

func (f recoverFlow) ClearFlowSteps() {
	defer f.catch("ClearFlowSteps")
	f.next.ClearFlowSteps()
}

func (f recoverFlow) LogRouteStatus(message string) {
	defer f.catch("LogRouteStatus")
	f.next.LogRouteStatus(message)
}

// StepCount 返回步骤数; 未实现 StepCounter 或 panic 时返回 -1 (未知)。
func (f recoverFlow) StepCount() (n int) {
	sc, ok := f.next.(StepCounter)
	if !ok {
		return -1
	}
	n = -1
	defer f.catch("StepCount")
	return sc.StepCount()
}

func (f recoverFlow) catch(hook string) {
	if r := recover(); r != nil {
		logger.Error("chatstate: flow adapter panicked",
			logger.FieldName, hook,
			logger.FieldError, r,
			"stack", string(debug.Stack()),
		)
	}
}
