package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 是覆盖配置项的环境变量前缀，层级之间使用双下划线分隔，
// 例如 KOL_TWITTER__BEARER_TOKEN 对应 twitter.bearer_token。
const EnvPrefix = "KOL_"

// Config 描述了 KOL Agent 在启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig    `koanf:"server"`
	Logging      LoggingConfig   `koanf:"logging"`
	Runtime      RuntimeConfig   `koanf:"runtime"`
	Capabilities Capabilities    `koanf:"capabilities"`
	Solana       SolanaConfig    `koanf:"solana"`
	Web3         Web3Config      `koanf:"web3"`
	Twitter      TwitterConfig   `koanf:"twitter"`
	Farcaster    FarcasterConfig `koanf:"farcaster"`
	RSS          RSSConfig       `koanf:"rss"`
	LLM          LLMConfig       `koanf:"llm"`
	Scraper      ScraperConfig   `koanf:"scraper"`
	Storage      StorageConfig   `koanf:"storage"`
	TaskQueue    TaskQueueConfig `koanf:"task_queue"`
	Auth         AuthConfig      `koanf:"auth"`
	Alerting     AlertingConfig  `koanf:"alerting"`
}

// ServerConfig 控制 REST 与 MCP HTTP 服务的监听参数。
type ServerConfig struct {
	Address         string        `koanf:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MCPPath         string        `koanf:"mcp_path"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string   `koanf:"level"`
	Format      string   `koanf:"format"`
	OutputPaths []string `koanf:"output_paths"`
	AuditPath   string   `koanf:"audit_path"`
	AuditMaxMB  int      `koanf:"audit_max_mb"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `koanf:"data_dir"`
}

// Capabilities 显式声明可选集成是否启用。
// 某项能力只有在开关打开且所需凭据齐全时才真正生效，见 Effective。
type Capabilities struct {
	TwitterSearch bool `koanf:"twitter_search"`
	TwitterPost   bool `koanf:"twitter_post"`
	Farcaster     bool `koanf:"farcaster"`
	RSS           bool `koanf:"rss"`
	TokenCreation bool `koanf:"token_creation"`
	LLM           bool `koanf:"llm"`
}

// SolanaConfig 描述默认 Solana 网络与签名钱包。
type SolanaConfig struct {
	RPCURL         string        `koanf:"rpc_url"`
	WSURL          string        `koanf:"ws_url"`
	PrivateKey     string        `koanf:"private_key"`
	Commitment     string        `koanf:"commitment"`
	ConfirmTimeout time.Duration `koanf:"confirm_timeout"`
}

// Web3Config 指向额外的链定义文件。
type Web3Config struct {
	ChainConfig  string `koanf:"chain_config"`
	DefaultChain string `koanf:"default_chain"`
}

// TwitterConfig 包含 Twitter API v2 的凭据。
type TwitterConfig struct {
	BaseURL           string `koanf:"base_url"`
	BearerToken       string `koanf:"bearer_token"`
	APIKey            string `koanf:"api_key"`
	APISecret         string `koanf:"api_secret"`
	AccessToken       string `koanf:"access_token"`
	AccessSecret      string `koanf:"access_secret"`
	TrendingQuery     string `koanf:"trending_query"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
}

// FarcasterConfig 描述 Neynar API 的访问方式。
type FarcasterConfig struct {
	BaseURL           string `koanf:"base_url"`
	APIKey            string `koanf:"api_key"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
}

// RSSConfig 列出额外的 RSS/Nitter 订阅源。
type RSSConfig struct {
	Feeds             []string `koanf:"feeds"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
}

// LLMConfig 用于 draft_thread 工具调用兼容 OpenAI 的接口。
type LLMConfig struct {
	APIKey    string        `koanf:"api_key"`
	APIKeyEnv string        `koanf:"api_key_env"`
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	Timeout   time.Duration `koanf:"timeout"`
}

// ScraperConfig 控制热门代币统计的输出。
type ScraperConfig struct {
	TopN             int    `koanf:"top_n"`
	SourceAccounting string `koanf:"source_accounting"`
}

// StorageConfig 统一描述调用历史与任务状态的存储后端。
type StorageConfig struct {
	History   HistoryStoreConfig `koanf:"history"`
	TaskStore TaskStoreConfig    `koanf:"task_store"`
}

// HistoryStoreConfig 描述工具调用历史的存储。
type HistoryStoreConfig struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// TaskStoreConfig 描述异步任务状态的存储。
type TaskStoreConfig struct {
	Driver     string `koanf:"driver"`
	DSN        string `koanf:"dsn"`
	MaxRetries int    `koanf:"max_retries"`
}

// TaskQueueConfig 描述任务队列驱动。
type TaskQueueConfig struct {
	Driver   string         `koanf:"driver"`
	Workers  int            `koanf:"workers"`
	Redis    RedisConfig    `koanf:"redis"`
	RabbitMQ RabbitMQConfig `koanf:"rabbitmq"`
}

// RedisConfig 对应 Redis list 队列。
type RedisConfig struct {
	Address   string        `koanf:"address"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	Queue     string        `koanf:"queue"`
	BlockWait time.Duration `koanf:"block_wait"`
}

// RabbitMQConfig 对应 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL      string `koanf:"url"`
	Queue    string `koanf:"queue"`
	Prefetch int    `koanf:"prefetch"`
	Durable  bool   `koanf:"durable"`
}

// AuthConfig 控制 REST 接口的鉴权方式。
type AuthConfig struct {
	Mode     string        `koanf:"mode"`
	Secret   string        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// AlertingConfig 配置任务失败告警。
type AlertingConfig struct {
	Telegram TelegramConfig `koanf:"telegram"`
}

// TelegramConfig 描述 Telegram 机器人通知。
type TelegramConfig struct {
	BotToken string   `koanf:"bot_token"`
	ChatIDs  []string `koanf:"chat_ids"`
}

var defaults = map[string]any{
	"server.address":                 ":8080",
	"server.shutdown_timeout":        "5s",
	"server.mcp_path":                "/mcp",
	"logging.level":                  "info",
	"logging.format":                 "json",
	"logging.audit_max_mb":           100,
	"runtime.data_dir":               "data",
	"capabilities.twitter_search":    true,
	"capabilities.twitter_post":      true,
	"capabilities.farcaster":         true,
	"capabilities.rss":               false,
	"capabilities.token_creation":    true,
	"capabilities.llm":               false,
	"solana.rpc_url":                 "https://api.devnet.solana.com",
	"solana.commitment":              "confirmed",
	"solana.confirm_timeout":         "60s",
	"web3.default_chain":             "solana",
	"twitter.base_url":               "https://api.twitter.com",
	"twitter.trending_query":         "crypto OR memecoin OR solana OR $",
	"twitter.requests_per_minute":    60,
	"farcaster.base_url":             "https://api.neynar.com",
	"farcaster.requests_per_minute":  60,
	"rss.requests_per_minute":        30,
	"llm.base_url":                   "https://api.openai.com/v1",
	"llm.model":                      "gpt-4o-mini",
	"llm.timeout":                    "60s",
	"scraper.top_n":                  20,
	"scraper.source_accounting":      "running_total",
	"storage.history.driver":         "memory",
	"storage.task_store.driver":      "memory",
	"storage.task_store.max_retries": 3,
	"task_queue.driver":              "memory",
	"task_queue.workers":             4,
	"task_queue.redis.queue":         "kolagent:tasks",
	"task_queue.redis.block_wait":    "5s",
	"task_queue.rabbitmq.queue":      "kolagent.tasks",
	"task_queue.rabbitmq.durable":    true,
	"auth.mode":                      "disabled",
	"auth.issuer":                    "kolagent",
	"auth.token_ttl":                 "24h",
}

// legacyEnv 兼容早期部署直接使用的环境变量名，优先级高于配置文件、低于 KOL_ 变量。
var legacyEnv = map[string]string{
	"SOLANA_RPC_URL":        "solana.rpc_url",
	"SOLANA_PRIVATE_KEY":    "solana.private_key",
	"TWITTER_API_KEY":       "twitter.api_key",
	"TWITTER_API_SECRET":    "twitter.api_secret",
	"TWITTER_ACCESS_TOKEN":  "twitter.access_token",
	"TWITTER_ACCESS_SECRET": "twitter.access_secret",
	"TWITTER_BEARER_TOKEN":  "twitter.bearer_token",
	"FARCASTER_API_KEY":     "farcaster.api_key",
}

// Load 依次叠加默认值、YAML 配置文件（可选）与 KOL_ 前缀的环境变量。
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("设置默认配置 %s 失败: %w", key, err)
		}
	}

	baseDir := "."
	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	for name, key := range legacyEnv {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			if err := k.Set(key, strings.TrimSpace(value)); err != nil {
				return nil, fmt.Errorf("应用环境变量 %s 失败: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("加载环境变量失败: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.resolveSecrets(os.LookupEnv)
	if err := cfg.normalise(baseDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

func (c *Config) resolveSecrets(lookup func(string) (string, bool)) {
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		if value, ok := lookup(c.LLM.APIKeyEnv); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalise(baseDir string) error {
	if c.Runtime.DataDir != "" && !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
	switch c.Scraper.SourceAccounting {
	case "delta", "running_total":
	default:
		return fmt.Errorf("未知的 scraper.source_accounting: %s", c.Scraper.SourceAccounting)
	}
	switch c.Auth.Mode {
	case "disabled":
	case "jwt":
		if strings.TrimSpace(c.Auth.Secret) == "" {
			return fmt.Errorf("auth.mode=jwt 需要配置 auth.secret")
		}
	default:
		return fmt.Errorf("未知的 auth.mode: %s", c.Auth.Mode)
	}
	if c.Scraper.TopN <= 0 {
		c.Scraper.TopN = 20
	}
	return nil
}

// Effective 返回综合开关与凭据之后真正可用的能力集合。
func (c *Config) Effective() Capabilities {
	caps := c.Capabilities
	tw := c.Twitter
	caps.TwitterSearch = caps.TwitterSearch && tw.BearerToken != ""
	caps.TwitterPost = caps.TwitterPost && tw.APIKey != "" && tw.APISecret != "" && tw.AccessToken != "" && tw.AccessSecret != ""
	caps.Farcaster = caps.Farcaster && c.Farcaster.APIKey != ""
	caps.RSS = caps.RSS && len(c.RSS.Feeds) > 0
	caps.TokenCreation = caps.TokenCreation && c.Solana.PrivateKey != ""
	caps.LLM = caps.LLM && c.LLM.APIKey != ""
	return caps
}
