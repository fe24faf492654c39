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
)

// KServeModel 通过 KServe V2（Open Inference Protocol）调用部署在 KServe / Triton 上的 Phoenix 模型。
//
//   - 就绪检查：GET  /v2/models/{model_name}[/versions/{version}]/ready
//   - 推理：    POST /v2/models/{model_name}[/versions/{version}]/infer
//
// 请求 inputs 按 FeatureBatch / EmbeddingSet 的字段名命名（如 "candidate_post_embeddings"），
// 数据按行优先展平。响应中取名为 OutputName 的张量（缺省取第一个），形状必须是 [1, C, 19]。
type KServeModel struct {
	Endpoint     string
	ModelName    string
	ModelVersion string
	// OutputName 是打分张量名称，默认 "scores"
	OutputName string
	Timeout    time.Duration
	Auth       *AuthConfig
	Client     *http.Client

	cfg         atomic.Pointer[core.ModelConfig]
	breaker     *gobreaker.CircuitBreaker[*core.ScoreMatrix]
	breakerConf BreakerConfig
}

// AuthConfig 是推理服务认证配置。Type: basic | bearer | api_key。
type AuthConfig struct {
	Type     string `yaml:"type"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	APIKey   string `yaml:"api_key"`
}

// KServeOption 配置 KServeModel。
type KServeOption func(*KServeModel)

// WithKServeVersion 设置模型版本（路径中带 /versions/{version}）
func WithKServeVersion(version string) KServeOption {
	return func(m *KServeModel) {
		m.ModelVersion = version
	}
}

// WithKServeOutputName 设置打分张量名称
func WithKServeOutputName(name string) KServeOption {
	return func(m *KServeModel) {
		m.OutputName = name
	}
}

// WithKServeTimeout 设置超时
func WithKServeTimeout(timeout time.Duration) KServeOption {
	return func(m *KServeModel) {
		m.Timeout = timeout
	}
}

// WithKServeAuth 设置认证
func WithKServeAuth(auth *AuthConfig) KServeOption {
	return func(m *KServeModel) {
		m.Auth = auth
	}
}

// WithKServeHTTPClient 设置自定义 HTTP 客户端
func WithKServeHTTPClient(c *http.Client) KServeOption {
	return func(m *KServeModel) {
		m.Client = c
	}
}

// WithKServeBreaker 设置熔断配置
func WithKServeBreaker(cfg BreakerConfig) KServeOption {
	return func(m *KServeModel) {
		m.breakerConf = cfg
	}
}

// NewKServeModel 创建 KServe 模型适配器。endpoint 为根地址（如 http://localhost:8080）。
func NewKServeModel(endpoint, modelName string, opts ...KServeOption) *KServeModel {
	m := &KServeModel{
		Endpoint:    strings.TrimRight(endpoint, "/"),
		ModelName:   modelName,
		OutputName:  "scores",
		Timeout:     5 * time.Second,
		breakerConf: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Client == nil {
		m.Client = &http.Client{Timeout: m.Timeout}
	}
	m.breakerConf.Name = "phoenix-kserve-" + modelName
	m.breaker = newBreaker(m.breakerConf)
	return m
}

func (m *KServeModel) Name() string {
	return "kserve"
}

// BreakerState 返回熔断器当前状态。
func (m *KServeModel) BreakerState() string {
	return m.breaker.State().String()
}

func (m *KServeModel) modelPath() string {
	path := fmt.Sprintf("%s/v2/models/%s", m.Endpoint, m.ModelName)
	if m.ModelVersion != "" {
		path += "/versions/" + m.ModelVersion
	}
	return path
}

// Initialize 检查模型就绪并记录静态配置。
func (m *KServeModel) Initialize(ctx context.Context, cfg core.ModelConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.modelPath()+"/ready", nil)
	if err != nil {
		return fmt.Errorf("kserve ready create request: %w", err)
	}
	m.addAuth(req)
	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("kserve ready request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable,
			fmt.Sprintf("kserve model %s not ready: status=%d body=%s", m.ModelName, resp.StatusCode, string(body)))
	}
	m.cfg.Store(&cfg)
	return nil
}

type v2Tensor struct {
	Name     string `json:"name"`
	Shape    []int  `json:"shape"`
	Datatype string `json:"datatype"`
	Data     any    `json:"data"`
}

type v2InferRequest struct {
	Inputs  []v2Tensor          `json:"inputs"`
	Outputs []map[string]string `json:"outputs,omitempty"`
}

type v2OutputTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type v2InferResponse struct {
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version"`
	Outputs      []v2OutputTensor `json:"outputs"`
}

func int32Input(name string, t core.Tensor[int32]) v2Tensor {
	return v2Tensor{Name: name, Shape: t.Shape, Datatype: "INT32", Data: t.Data}
}

func fp32Input(name string, t core.Tensor[float32]) v2Tensor {
	return v2Tensor{Name: name, Shape: t.Shape, Datatype: "FP32", Data: t.Data}
}

// inferRequest 把 batch 与 embeddings 转成 V2 inputs。
func (m *KServeModel) inferRequest(batch *core.FeatureBatch, emb *core.EmbeddingSet) *v2InferRequest {
	req := &v2InferRequest{
		Inputs: []v2Tensor{
			int32Input("user_hashes", batch.UserHashes),
			int32Input("history_post_hashes", batch.HistoryPostHashes),
			int32Input("history_author_hashes", batch.HistoryAuthorHashes),
			fp32Input("history_actions", batch.HistoryActions),
			int32Input("history_product_surface", batch.HistoryProductSurface),
			int32Input("candidate_post_hashes", batch.CandidatePostHashes),
			int32Input("candidate_author_hashes", batch.CandidateAuthorHashes),
			int32Input("candidate_product_surface", batch.CandidateProductSurface),
			fp32Input("user_embeddings", emb.UserEmbeddings),
			fp32Input("history_post_embeddings", emb.HistoryPostEmbeddings),
			fp32Input("history_author_embeddings", emb.HistoryAuthorEmbeddings),
			fp32Input("candidate_post_embeddings", emb.CandidatePostEmbeddings),
			fp32Input("candidate_author_embeddings", emb.CandidateAuthorEmbeddings),
		},
	}
	if m.OutputName != "" {
		req.Outputs = []map[string]string{{"name": m.OutputName}}
	}
	return req
}

// Score 调用 /infer 打分。
func (m *KServeModel) Score(ctx context.Context, batch *core.FeatureBatch, emb *core.EmbeddingSet) (*core.ScoreMatrix, error) {
	if m.cfg.Load() == nil {
		return nil, core.ErrModelNotInitialized
	}
	if batch == nil || emb == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "kserve: batch and embeddings are required")
	}
	scores, err := m.breaker.Execute(func() (*core.ScoreMatrix, error) {
		return m.infer(ctx, m.inferRequest(batch, emb))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable, "kserve circuit open"), err)
		}
		return nil, err
	}
	return scores, nil
}

func (m *KServeModel) infer(ctx context.Context, body *v2InferRequest) (*core.ScoreMatrix, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kserve v2 marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.modelPath()+"/infer", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("kserve v2 create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.addAuth(req)

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kserve v2 request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kserve v2 error: status=%d, body=%s", resp.StatusCode, string(data))
	}

	var out v2InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("kserve v2 parse response: %w", err)
	}
	tensor := m.pickOutput(out.Outputs)
	if tensor == nil {
		return nil, fmt.Errorf("kserve v2 empty outputs")
	}
	return &core.ScoreMatrix{Shape: tensor.Shape, Data: tensor.Data}, nil
}

// pickOutput 优先按名称匹配，否则取第一个。
func (m *KServeModel) pickOutput(outputs []v2OutputTensor) *v2OutputTensor {
	if len(outputs) == 0 {
		return nil
	}
	for i := range outputs {
		if m.OutputName != "" && outputs[i].Name == m.OutputName {
			return &outputs[i]
		}
	}
	return &outputs[0]
}

func (m *KServeModel) addAuth(req *http.Request) {
	if m.Auth == nil {
		return
	}
	switch m.Auth.Type {
	case "basic":
		req.SetBasicAuth(m.Auth.Username, m.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+m.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", m.Auth.APIKey)
	}
}

var _ core.ScoringModel = (*KServeModel)(nil)
var _ core.ModelInitializer = (*KServeModel)(nil)
