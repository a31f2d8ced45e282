package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-tavern/widget/internal/format"
	"github.com/zhouzirui/z-tavern/widget/pkg/logging"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Widget  WidgetConfig
	Format  FormatConfig
	Log     LogConfig
	AI      AIConfig
	Stub    StubConfig
}

// ServerConfig 描述网关 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// BackendConfig 描述远端对话服务。
type BackendConfig struct {
	BaseURL        string        `env:"CHAT_BACKEND_URL" envDefault:"https://nyansabackb5.onrender.com"`
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"0s"`
}

// WidgetConfig 描述聊天组件的行为。
type WidgetConfig struct {
	Welcome       string        `env:"WIDGET_WELCOME" envDefault:"Hi! Ask me anything to get started."`
	DisclaimerURL string        `env:"WIDGET_DISCLAIMER_URL" envDefault:"https://chatbotdisclaimer.onrender.com"`
	DisclaimerKey string        `env:"WIDGET_DISCLAIMER_KEY" envDefault:"disclaimerAgreed"`
	SendPolicy    string        `env:"WIDGET_SEND_POLICY" envDefault:"queue"`
	IdleTimeout   time.Duration `env:"WIDGET_IDLE_TIMEOUT" envDefault:"30m"`
	EvictInterval time.Duration `env:"WIDGET_EVICT_INTERVAL" envDefault:"1m"`
	RatePerMinute int           `env:"WIDGET_RATE_PER_MINUTE" envDefault:"30"`
	RateBurst     int           `env:"WIDGET_RATE_BURST" envDefault:"5"`
}

// FormatConfig 描述回复渲染前的转义策略。
type FormatConfig struct {
	Escape string `env:"FORMAT_ESCAPE" envDefault:"html"`
	Mode   format.EscapeMode
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string         `env:"LOG_LEVEL" envDefault:"info"`
	Format logging.Format `env:"LOG_FORMAT" envDefault:"auto"`
}

// StubConfig 描述本地替身后端。
type StubConfig struct {
	Port      string `env:"STUB_PORT" envDefault:"8081"`
	Addr      string
	ProfileID string `env:"STUB_PROFILE" envDefault:"site-assistant"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string `env:"ARK_API_KEY"`
	AccessKey    string `env:"ARK_ACCESS_KEY"`
	SecretKey    string `env:"ARK_SECRET_KEY"`
	Model        string `env:"Model"`
	BaseURL      string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region       string `env:"ARK_REGION" envDefault:"cn-beijing"`
	HistoryLimit int    `env:"AI_HISTORY_LIMIT" envDefault:"10"`
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	stubAddr, err := listenAddr(cfg.Stub.Port)
	if err != nil {
		return nil, err
	}
	cfg.Stub.Addr = stubAddr

	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.RequestTimeout < 0 {
		return nil, errors.Errorf("invalid CHAT_REQUEST_TIMEOUT value %q", cfg.Backend.RequestTimeout)
	}

	mode, err := format.ParseEscapeMode(cfg.Format.Escape)
	if err != nil {
		return nil, errors.Wrap(err, "invalid FORMAT_ESCAPE")
	}
	cfg.Format.Mode = mode

	switch strings.ToLower(strings.TrimSpace(cfg.Widget.SendPolicy)) {
	case "", "queue":
		cfg.Widget.SendPolicy = "queue"
	case "reject":
		cfg.Widget.SendPolicy = "reject"
	default:
		return nil, errors.Errorf("invalid WIDGET_SEND_POLICY value %q", cfg.Widget.SendPolicy)
	}

	if err := loadAIOptionals(&cfg.AI); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// listenAddr 解析监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", errors.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// loadAIOptionals 解析可选的采样参数，未设置时保持 nil。
func loadAIOptionals(c *AIConfig) error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}

	c.APIKey = strings.TrimSpace(c.APIKey)
	c.AccessKey = strings.TrimSpace(c.AccessKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.Model = strings.TrimSpace(c.Model)
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 1
	}
	c.Temperature = temperature
	c.TopP = topP
	c.MaxTokens = maxTokens
	return nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
