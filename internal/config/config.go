// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"time"

	"github.com/datalab-agent/analyst-go/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// 运行环境 / 日志
	AppEnv   string `env:"APP_ENV" default:"production"`
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
	LogDir   string `env:"LOG_DIR"`

	// HTTP (dashboard + SSE)
	HTTPListen               string `env:"HTTP_LISTEN" default:":8080"`
	DashboardSSEKeepaliveSec int    `env:"DASHBOARD_SSE_KEEPALIVE_SEC" default:"30" min:"1"`

	// Agent 后端 (流式对话)
	AgentWSURL              string `env:"AGENT_WS_URL" default:"ws://127.0.0.1:8000/ws/chat"`
	AgentModel              string `env:"AGENT_MODEL" default:"gpt-4o"`
	AgentDialTimeoutSec     int    `env:"AGENT_DIAL_TIMEOUT_SEC" default:"5" min:"1"`
	AgentReadIdleTimeoutSec int    `env:"AGENT_READ_IDLE_TIMEOUT_SEC" default:"120" min:"5"`
	AgentPingIntervalSec    int    `env:"AGENT_PING_INTERVAL_SEC" default:"20" min:"1"`
	AgentMaxMessageBytes    int    `env:"AGENT_MAX_MESSAGE_BYTES" default:"8388608" min:"1024"` // 8MB
	MaxUserMessageRunes     int    `env:"MAX_USER_MESSAGE_RUNES" default:"8000" min:"1"`
	WatchdogTimeoutSec      int    `env:"WATCHDOG_TIMEOUT_SEC" default:"30" min:"1"`
	SessionFetchTimeoutSec  int    `env:"SESSION_FETCH_TIMEOUT_SEC" default:"10" min:"1"`
	SessionTitleMaxRunes    int    `env:"SESSION_TITLE_MAX_RUNES" default:"20" min:"4"`
	FlowRulesPath           string `env:"FLOW_RULES_PATH"`

	// PostgreSQL
	PostgresConnStr     string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema      string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
	MigrationsDir       string `env:"MIGRATIONS_DIR" default:"./migrations"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}

// WatchdogTimeout 返回看门狗时长。
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutSec) * time.Second
}

// SessionFetchTimeout 返回会话元数据拉取超时。
func (c *Config) SessionFetchTimeout() time.Duration {
	return time.Duration(c.SessionFetchTimeoutSec) * time.Second
}

// AgentDialTimeout 返回 WebSocket 握手超时。
func (c *Config) AgentDialTimeout() time.Duration {
	return time.Duration(c.AgentDialTimeoutSec) * time.Second
}

// AgentReadIdleTimeout 返回读空闲超时 (超时视为流中断)。
func (c *Config) AgentReadIdleTimeout() time.Duration {
	return time.Duration(c.AgentReadIdleTimeoutSec) * time.Second
}

// AgentPingInterval 返回 ping 间隔。
func (c *Config) AgentPingInterval() time.Duration {
	return time.Duration(c.AgentPingIntervalSec) * time.Second
}

// SSEKeepAlive 返回 SSE 心跳间隔。
func (c *Config) SSEKeepAlive() time.Duration {
	return time.Duration(c.DashboardSSEKeepaliveSec) * time.Second
}
