// Package config 加载服务配置：YAML 文件 -> 默认值 -> 环境变量覆盖 -> 校验。
//
// 环境变量（非法整数保持原值）：
//
//	PHOENIX_HISTORY_LEN    ranker.history_len
//	PHOENIX_CANDIDATE_LEN  ranker.candidate_len
//	PHOENIX_EMB_SIZE       ranker.emb_size
//	PHOENIX_ADDR           server.addr
//	PHOENIX_LOG_LEVEL      log.level
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feedback"
	"github.com/rushteam/phoenix/history"
	"github.com/rushteam/phoenix/pkg/dsl"
	"github.com/rushteam/phoenix/store"
)

// Config 是服务的完整配置。
type Config struct {
	Server   ServerConfig     `yaml:"server"`
	Log      LogConfig        `yaml:"log"`
	Ranker   core.ModelConfig `yaml:"ranker"`
	Model    ModelConfig      `yaml:"model"`
	Cache    CacheConfig      `yaml:"cache"`
	History  HistoryConfig    `yaml:"history"`
	Feedback FeedbackConfig   `yaml:"feedback"`
	Labels   []dsl.Rule       `yaml:"labels"`
}

// ServerConfig 是 HTTP 服务配置。
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit 是每秒允许的 /rank 请求数，<= 0 表示不限流
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// MaxBodyBytes 是请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LogConfig 是日志配置。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// ModelConfig 选择打分模型实现，Params 由对应的 builder 解释。
type ModelConfig struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// CacheConfig 是排序响应缓存配置（缓存整个响应，不缓存 embedding）。
type CacheConfig struct {
	Enabled bool         `yaml:"enabled"`
	TTL     int          `yaml:"ttl"` // 秒
	Store   store.Config `yaml:"store"`
}

// HistoryConfig 是历史补齐配置。Provider 为空表示不补齐。
type HistoryConfig struct {
	Provider  string              `yaml:"provider"` // "" | store | feast
	Timeout   time.Duration       `yaml:"timeout"`
	KeyPrefix string              `yaml:"key_prefix"`
	Store     store.Config        `yaml:"store"`
	Feast     history.FeastConfig `yaml:"feast"`
}

// FeedbackConfig 是排序事件发布配置。
type FeedbackConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Kafka   feedback.KafkaConfig `yaml:"kafka"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Log:    LogConfig{Level: "info", Format: "console"},
		Ranker: core.DefaultModelConfig(),
		Model:  ModelConfig{Type: "two_tower"},
		Cache:  CacheConfig{TTL: 60},
		History: HistoryConfig{
			Timeout:   100 * time.Millisecond,
			KeyPrefix: history.DefaultKeyPrefix,
		},
	}
}

// Load 从 YAML 文件加载配置。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
	}
	return Parse(data, os.Getenv)
}

// Parse 解析 YAML 内容并应用环境变量覆盖与校验。getenv 为 nil 时不读环境变量。
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.Ranker.HistorySeqLen = envInt(getenv, "PHOENIX_HISTORY_LEN", c.Ranker.HistorySeqLen)
	c.Ranker.CandidateSeqLen = envInt(getenv, "PHOENIX_CANDIDATE_LEN", c.Ranker.CandidateSeqLen)
	c.Ranker.EmbSize = envInt(getenv, "PHOENIX_EMB_SIZE", c.Ranker.EmbSize)
	if v := getenv("PHOENIX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("PHOENIX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// envInt 读取整数环境变量，未设置或非法时返回 def。
func envInt(getenv func(string) string, name string, def int) int {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Validate 校验配置。
func (c *Config) Validate() error {
	r := c.Ranker
	switch {
	case r.EmbSize <= 0:
		return fmt.Errorf("ranker.emb_size must be positive, got %d", r.EmbSize)
	case r.HistorySeqLen < 0:
		return fmt.Errorf("ranker.history_len must not be negative, got %d", r.HistorySeqLen)
	case r.CandidateSeqLen <= 0:
		return fmt.Errorf("ranker.candidate_len must be positive, got %d", r.CandidateSeqLen)
	case r.NumActions <= 0:
		return fmt.Errorf("ranker.num_actions must be positive, got %d", r.NumActions)
	case r.VocabSize < 2:
		return fmt.Errorf("ranker.vocab_size must be at least 2, got %d", r.VocabSize)
	case r.Hash.NumUserHashes <= 0 || r.Hash.NumItemHashes <= 0 || r.Hash.NumAuthorHashes <= 0:
		return fmt.Errorf("ranker.hash: all hash counts must be positive, got %+v", r.Hash)
	}
	if c.Model.Type == "" {
		return fmt.Errorf("model.type is required")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %d", c.Cache.TTL)
	}
	switch c.History.Provider {
	case "", "store", "feast":
	default:
		return fmt.Errorf("history.provider: unsupported %q (supported: store, feast)", c.History.Provider)
	}
	if c.Feedback.Enabled && (len(c.Feedback.Kafka.Brokers) == 0 || c.Feedback.Kafka.Topic == "") {
		return fmt.Errorf("feedback.kafka: brokers and topic are required when feedback is enabled")
	}
	return nil
}
