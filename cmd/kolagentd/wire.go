package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"KOL-Agent/internal/agent"
	"KOL-Agent/internal/config"
	"KOL-Agent/internal/llm/openai"
	"KOL-Agent/internal/observability/alerting"
	"KOL-Agent/internal/scraper"
	"KOL-Agent/internal/social/farcaster"
	"KOL-Agent/internal/social/rss"
	"KOL-Agent/internal/social/twitter"
	"KOL-Agent/internal/storage/mysql"
	"KOL-Agent/internal/task"
	"KOL-Agent/internal/web3/provider"
	"KOL-Agent/pkg/logger"
)

const memoryQueueSize = 1024

// runtime 持有一次进程运行中需要释放的全部资源。
type runtime struct {
	cfg     *config.Config
	agent   *agent.Agent
	closers []func() error
}

func (r *runtime) onClose(fn func() error) { r.closers = append(r.closers, fn) }

// Close 按创建的逆序释放资源。
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initLogger 配置全局日志。stdio 模式下 stdout 承载协议帧，日志只能写 stderr。
func initLogger(cfg *config.Config, stdio bool) error {
	outputs := cfg.Logging.OutputPaths
	if stdio {
		filtered := make([]string, 0, len(outputs)+1)
		for _, out := range outputs {
			if out != "stdout" {
				filtered = append(filtered, out)
			}
		}
		outputs = append(filtered, "stderr")
	}
	return logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Audit: logger.AuditConfig{
			Enabled:   cfg.Logging.AuditPath != "",
			Path:      cfg.Logging.AuditPath,
			MaxSizeMB: cfg.Logging.AuditMaxMB,
		},
	})
}

// buildRuntime 依次创建链客户端、社交客户端、大模型、历史存储与 Agent。
func buildRuntime(ctx context.Context, cfg *config.Config) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()
	log := logger.Named("bootstrap")

	if cfg.Runtime.DataDir != "" {
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	caps := cfg.Effective()
	var deps agent.Dependencies

	registry, err := provider.NewRegistry(ctx, cfg)
	if err != nil {
		// 链不可用时其余工具仍可工作。
		log.Warn("链客户端初始化失败，链上工具不可用", slog.Any("error", err))
	} else {
		deps.Chains = registry
		rt.onClose(func() error { registry.Close(); return nil })
	}

	twCfg := twitter.Config{
		BaseURL:           cfg.Twitter.BaseURL,
		BearerToken:       cfg.Twitter.BearerToken,
		APIKey:            cfg.Twitter.APIKey,
		APISecret:         cfg.Twitter.APISecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessSecret:      cfg.Twitter.AccessSecret,
		TrendingQuery:     cfg.Twitter.TrendingQuery,
		RequestsPerMinute: cfg.Twitter.RequestsPerMinute,
	}
	if caps.TwitterSearch || caps.TwitterPost {
		deps.Twitter = twitter.New(twCfg)
	}

	if caps.Farcaster {
		client, err := farcaster.New(farcaster.Config{
			BaseURL:           cfg.Farcaster.BaseURL,
			APIKey:            cfg.Farcaster.APIKey,
			RequestsPerMinute: cfg.Farcaster.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}
		deps.Farcaster = client
	}

	if caps.RSS {
		client, err := rss.New(rss.Config{Feeds: cfg.RSS.Feeds, RequestsPerMinute: cfg.RSS.RequestsPerMinute})
		if err != nil {
			return nil, err
		}
		deps.RSS = client
	}

	if caps.LLM {
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		deps.LLM = client
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps.History = history
	rt.onClose(history.Close)

	accounting, err := scraper.ParseAccounting(cfg.Scraper.SourceAccounting)
	if err != nil {
		return nil, err
	}

	rt.agent = agent.New(agent.Capabilities{
		TwitterSearch: caps.TwitterSearch,
		TwitterPost:   caps.TwitterPost,
		Farcaster:     caps.Farcaster,
		RSS:           caps.RSS,
		TokenCreation: caps.TokenCreation,
		LLM:           caps.LLM,
	}, deps,
		agent.WithTopN(cfg.Scraper.TopN),
		agent.WithAccounting(accounting),
		agent.WithLLMTimeout(cfg.LLM.Timeout),
	)
	log.Info("Agent 初始化完成",
		slog.Any("capabilities", rt.agent.Capabilities()),
		slog.String("history_driver", cfg.Storage.History.Driver),
	)
	return rt, nil
}

func openHistory(ctx context.Context, cfg *config.Config) (mysql.HistoryRepository, error) {
	switch cfg.Storage.History.Driver {
	case "", "memory":
		return mysql.NewMemoryHistoryRepository(cfg.Runtime.DataDir)
	case "mysql":
		return mysql.NewSQLHistoryRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.History.DSN,
			MaxOpenConns:    cfg.Storage.History.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.History.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.History.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.Storage.History.Driver)
	}
}

// taskRuntime 组合任务存储、队列与处理器。
type taskRuntime struct {
	service   *task.Service
	processor *task.Processor
}

func buildTasks(ctx context.Context, rt *runtime) (*taskRuntime, error) {
	cfg := rt.cfg

	var store task.Store
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		store = task.NewMemoryStore()
	case "mysql":
		s, err := task.NewMySQLStore(ctx, mysql.Config{DSN: cfg.Storage.TaskStore.DSN})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}

	queue, err := openQueue(ctx, cfg.TaskQueue)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if tg := alerting.NewTelegram(cfg.Alerting.Telegram.BotToken, cfg.Alerting.Telegram.ChatIDs); tg != nil {
		notifiers = append(notifiers, tg)
	}

	service := task.NewService(store, queue, cfg.Storage.TaskStore.MaxRetries, task.WithToolCatalog(rt.agent.HasTool))
	rt.onClose(service.Close)

	processor := task.NewProcessor(rt.agent, store, queue, queue,
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)
	return &taskRuntime{service: service, processor: processor}, nil
}

type queue interface {
	task.Producer
	task.Consumer
}

func openQueue(ctx context.Context, cfg config.TaskQueueConfig) (queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(memoryQueueSize), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: cfg.Redis.BlockWait,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
