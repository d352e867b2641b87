package agentclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// OutFrame 脚本化后端发出的帧。
type OutFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ScriptFunc 按请求生成回复帧序列。序列不以 done / error 结尾时, 发送完毕后直接断开连接。
type ScriptFunc func(req chatstate.ChatRequest) []OutFrame

// MockAgent 本地脚本化 agent 后端 (http.Handler), 用于联调和测试。
type MockAgent struct {
	script   ScriptFunc
	delay    time.Duration
	upgrader websocket.Upgrader
}

// NewMockAgent 创建脚本化后端; script 为 nil 时使用 DemoScript。delay 为帧间隔。
func NewMockAgent(script ScriptFunc, delay time.Duration) *MockAgent {
	if script == nil {
		script = DemoScript
	}
	return &MockAgent{
		script: script,
		delay:  delay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP 升级为 WebSocket, 读取请求帧后按脚本推送。
func (m *MockAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("mockagent: upgrade failed", logger.FieldError, err)
		return
	}
	defer conn.Close()

	var req requestFrame
	if err := conn.ReadJSON(&req); err != nil {
		logger.Warn("mockagent: read request failed", logger.FieldError, err)
		return
	}
	terminated := false
	for _, f := range m.script(req.Data) {
		if m.delay > 0 {
			time.Sleep(m.delay)
		}
		if err := conn.WriteJSON(f); err != nil {
			logger.Debug("mockagent: write frame failed", logger.FieldError, err)
			return
		}
		if classifyFrame(f.Type).Terminal() {
			terminated = true
			break
		}
	}
	if !terminated {
		return
	}
	// 等客户端关闭, 最多 2 秒
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// DemoScript 演示脚本: 文本增量 → 一次工具调用 → 总结与下一步建议 → done。
func DemoScript(req chatstate.ChatRequest) []OutFrame {
	return []OutFrame{
		{Type: "text_delta", Data: map[string]any{"content": "收到，正在"}},
		{Type: "text_delta", Data: map[string]any{"content": fmt.Sprintf("分析数据集 %s...", req.DatasetID)}},
		{Type: "tool_call_start", Data: map[string]any{
			"id":   "call-1",
			"name": "analyze_data",
			"args": map[string]any{"dataset_id": req.DatasetID, "route": req.Route},
		}},
		{Type: "tool_call_result", Data: map[string]any{"id": "call-1", "result": map[string]any{"rows": 10}}},
		{Type: "text_delta", Data: map[string]any{"content": "\n\n分析完成，共 10 行数据。\n\n**下一步建议**：\n1. 检查缺失值\n2. 尝试建立预测模型\n"}},
		{Type: "done", Data: map[string]any{}},
	}
}
