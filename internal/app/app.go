// Package app 按配置组装运行时: 数据库 → 存储 → agent 客户端 → 流程面板 → 控制器 → dashboard。
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datalab-agent/analyst-go/internal/agentclient"
	"github.com/datalab-agent/analyst-go/internal/chatstate"
	"github.com/datalab-agent/analyst-go/internal/config"
	"github.com/datalab-agent/analyst-go/internal/dashboard"
	"github.com/datalab-agent/analyst-go/internal/database"
	"github.com/datalab-agent/analyst-go/internal/flowpanel"
	"github.com/datalab-agent/analyst-go/internal/store"
	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// Options 组装选项。
type Options struct {
	// RequireDB 为 true 时缺少 POSTGRES_CONNECTION_STRING 视为错误; 否则以无持久化模式运行。
	RequireDB bool
	// Migrate 打开数据库后执行迁移。
	Migrate bool
	// Notifier 额外的提示接收方, 与事件总线同时收到。
	Notifier chatstate.Notifier
	// OnFlow 额外的流程面板变更回调。
	OnFlow func(flowpanel.State)
}

// Runtime 组装完成的组件集合。
type Runtime struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Sessions   *store.SessionStore
	Logs       *store.ChatLogStore
	Bus        *dashboard.EventBus
	Panel      *flowpanel.Panel
	Agent      *agentclient.Client
	Controller *chatstate.Controller
}

// InitLogging 按配置初始化日志; LOG_DIR 非空时同时写文件。
func InitLogging(cfg *config.Config) {
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	if cfg.LogDir == "" {
		return
	}
	if err := logger.InitWithFile(cfg.LogDir, cfg.LogLevel); err != nil {
		logger.Warn("app: file logging unavailable", logger.FieldError, err)
	}
}

// OpenDatabase 创建连接池, 挂载 DB 日志 handler, 按需执行迁移。
func OpenDatabase(ctx context.Context, cfg *config.Config, migrate bool) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "app.OpenDatabase", "database init failed")
	}
	if migrate {
		if _, err := database.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, apperrors.Wrap(err, "app.OpenDatabase", "migration failed")
		}
	}
	logger.AttachDBHandler(pool)
	return pool, nil
}

// Build 组装运行时。调用方负责 Close。
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Bus: dashboard.NewEventBus()}

	if cfg.PostgresConnStr != "" {
		pool, err := OpenDatabase(ctx, cfg, opts.Migrate)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.Sessions = store.NewSessionStore(pool, cfg.SessionTitleMaxRunes)
		rt.Logs = store.NewChatLogStore(pool)
	} else if opts.RequireDB {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "app.Build", "POSTGRES_CONNECTION_STRING is required")
	} else {
		logger.Warn("app: POSTGRES_CONNECTION_STRING not set, running without persistence")
	}

	onFlow := rt.Bus.PublishFlow
	if opts.OnFlow != nil {
		extra := opts.OnFlow
		onFlow = func(s flowpanel.State) {
			rt.Bus.PublishFlow(s)
			extra(s)
		}
	}
	panel, err := flowpanel.NewFromFile(cfg.FlowRulesPath, onFlow)
	if err != nil {
		rt.Close()
		return nil, apperrors.Wrap(err, "app.Build", "load flow rules")
	}
	rt.Panel = panel

	rt.Agent = agentclient.New(agentclient.Config{
		URL:             cfg.AgentWSURL,
		DialTimeout:     cfg.AgentDialTimeout(),
		ReadIdleTimeout: cfg.AgentReadIdleTimeout(),
		PingInterval:    cfg.AgentPingInterval(),
		MaxMessageBytes: int64(cfg.AgentMaxMessageBytes),
	})

	ctrlOpts := chatstate.Options{
		WatchdogTimeout: cfg.WatchdogTimeout(),
		FetchTimeout:    cfg.SessionFetchTimeout(),
		Model:           cfg.AgentModel,
		Notifier:        fanoutNotifier(rt.Bus.Notifier(), opts.Notifier),
	}
	// 接口变量必须保持真 nil, 不能装入 (*SessionStore)(nil)
	var sessions chatstate.SessionAPI
	if rt.Sessions != nil {
		sessions = rt.Sessions
		ctrlOpts.Archiver = rt.Sessions
	}
	rt.Controller = chatstate.New(rt.Agent, sessions, rt.Panel, ctrlOpts)

	logger.Info("app: runtime ready",
		logger.FieldURL, cfg.AgentWSURL,
		logger.FieldModel, cfg.AgentModel,
		"persistence", rt.Pool != nil,
	)
	return rt, nil
}

// DashboardServer 基于运行时创建 HTTP 服务。
func (rt *Runtime) DashboardServer(staticDir string) *dashboard.Server {
	deps := dashboard.Deps{
		Chat:            rt.Controller,
		Flow:            rt.Panel,
		Bus:             rt.Bus,
		KeepAlive:       rt.Config.SSEKeepAlive(),
		MaxMessageRunes: rt.Config.MaxUserMessageRunes,
		StaticDir:       staticDir,
	}
	if rt.Sessions != nil {
		deps.Sessions = rt.Sessions
	}
	if rt.Logs != nil {
		deps.Logs = rt.Logs
	}
	return dashboard.NewServer(deps)
}

// Close 等待进行中的流关闭, 再释放数据库资源。
func (rt *Runtime) Close() {
	if rt.Agent != nil {
		rt.Agent.Wait()
	}
	if rt.Pool != nil {
		logger.ShutdownDBHandler()
		rt.Pool.Close()
	}
	logger.ShutdownFileHandler()
}

func fanoutNotifier(notifiers ...chatstate.Notifier) chatstate.Notifier {
	var active []chatstate.Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return chatstate.NotifierFunc(func(n chatstate.Notice) {
		for _, target := range active {
			target.Notify(n)
		}
	})
}
