package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/log"
)

// RPCModel 是通过 HTTP 调用远程 Phoenix 模型服务的 ScoringModel 实现。
//
// 协议（JSON）：
//   - 健康检查：GET  {endpoint}/health，200 视为可用（Initialize 时调用）
//   - 打分：    POST {endpoint}/score
//
// 请求体：
//
//	{"config": {...}, "batch": {...}, "embeddings": {...}}
//
// 响应体：
//
//	{"scores": {"shape": [1, 10, 19], "data": [...]}}
//
// 调用经过熔断器保护；不做重试，错误原样返回给 Ranker。
type RPCModel struct {
	Endpoint string // 例如 "http://localhost:8500"
	Timeout  time.Duration
	Client   *http.Client

	cfg         atomic.Pointer[core.ModelConfig]
	breaker     *gobreaker.CircuitBreaker[*core.ScoreMatrix]
	breakerConf BreakerConfig
}

// BreakerConfig 是熔断器配置。
type BreakerConfig struct {
	Name             string        `yaml:"name"`
	MaxRequests      uint32        `yaml:"max_requests"`      // 半开状态允许通过的请求数
	Interval         time.Duration `yaml:"interval"`          // 闭合状态下计数清零周期
	Timeout          time.Duration `yaml:"timeout"`           // 打开状态持续时间
	FailureThreshold uint32        `yaml:"failure_threshold"` // 连续失败多少次后打开
}

// DefaultBreakerConfig 返回默认熔断配置。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "phoenix-model",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// RPCOption 是 RPCModel 的配置选项。
type RPCOption func(*RPCModel)

// WithRPCTimeout 设置请求超时。
func WithRPCTimeout(timeout time.Duration) RPCOption {
	return func(m *RPCModel) {
		m.Timeout = timeout
	}
}

// WithRPCHTTPClient 设置自定义 HTTP 客户端。
func WithRPCHTTPClient(c *http.Client) RPCOption {
	return func(m *RPCModel) {
		m.Client = c
	}
}

// WithRPCBreaker 设置熔断配置。
func WithRPCBreaker(cfg BreakerConfig) RPCOption {
	return func(m *RPCModel) {
		m.breakerConf = cfg
	}
}

// NewRPCModel 创建远程模型客户端。
func NewRPCModel(endpoint string, opts ...RPCOption) *RPCModel {
	m := &RPCModel{
		Endpoint:    strings.TrimRight(endpoint, "/"),
		Timeout:     5 * time.Second,
		breakerConf: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Client == nil {
		m.Client = &http.Client{Timeout: m.Timeout}
	}
	m.breaker = newBreaker(m.breakerConf)
	return m
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*core.ScoreMatrix] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[*core.ScoreMatrix](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		// 调用方取消不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (m *RPCModel) Name() string {
	return "rpc"
}

// BreakerState 返回熔断器当前状态（用于监控）。
func (m *RPCModel) BreakerState() string {
	return m.breaker.State().String()
}

// Initialize 探活远程服务并记录静态配置。
func (m *RPCModel) Initialize(ctx context.Context, cfg core.ModelConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable,
			fmt.Sprintf("model health check failed: status=%d body=%s", resp.StatusCode, string(body)))
	}
	m.cfg.Store(&cfg)
	return nil
}

type scoreRequest struct {
	Config     core.ModelConfig   `json:"config"`
	Batch      *core.FeatureBatch `json:"batch"`
	Embeddings *core.EmbeddingSet `json:"embeddings"`
}

type scoreResponse struct {
	Scores *core.ScoreMatrix `json:"scores"`
}

// Score 调用远程模型打分。
func (m *RPCModel) Score(ctx context.Context, batch *core.FeatureBatch, emb *core.EmbeddingSet) (*core.ScoreMatrix, error) {
	cfg := m.cfg.Load()
	if cfg == nil {
		return nil, core.ErrModelNotInitialized
	}
	scores, err := m.breaker.Execute(func() (*core.ScoreMatrix, error) {
		return m.score(ctx, &scoreRequest{Config: *cfg, Batch: batch, Embeddings: emb})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable, "model circuit open"), err)
		}
		return nil, err
	}
	return scores, nil
}

func (m *RPCModel) score(ctx context.Context, body *scoreRequest) (*core.ScoreMatrix, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint+"/score", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(data))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Scores == nil {
		return nil, fmt.Errorf("decode response: missing scores")
	}
	return result.Scores, nil
}

var _ core.ScoringModel = (*RPCModel)(nil)
var _ core.ModelInitializer = (*RPCModel)(nil)
