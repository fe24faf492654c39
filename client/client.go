// Package client 是 Phoenix 排序服务的 Go 客户端。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/rerank"
)

// DefaultTimeout 是单次请求超时。
const DefaultTimeout = 5 * time.Second

// Client 调用 POST {endpoint}/rank。
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// Option 是 Client 的配置选项。
type Option func(*Client)

// WithHTTPClient 设置自定义 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.HTTP = c
	}
}

// WithTimeout 设置请求超时（使用默认 HTTP 客户端时生效）。
func WithTimeout(timeout time.Duration) Option {
	return func(cl *Client) {
		cl.HTTP = &http.Client{Timeout: timeout}
	}
}

// New 创建客户端。endpoint 末尾的 "/" 会被去掉。
func New(endpoint string, opts ...Option) *Client {
	c := &Client{Endpoint: strings.TrimRight(endpoint, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// StatusError 表示服务端返回了非 2xx 状态码。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("phoenix error %d: %s", e.StatusCode, e.Body)
}

// Rank 发送一次排序请求。
func (c *Client) Rank(ctx context.Context, req *core.RankingRequest) (*core.RankingResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode phoenix request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/rank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("phoenix request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out core.RankingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("phoenix response parse failed: %w", err)
	}
	return &out, nil
}

// RankBatch 并发发送多个请求，最多 concurrency 个同时进行（<= 0 不限制）。
// 结果与 reqs 下标对齐；任一请求失败则取消其余请求并返回第一个错误。
func (c *Client) RankBatch(ctx context.Context, reqs []*core.RankingRequest, concurrency int) ([]*core.RankingResponse, error) {
	out := make([]*core.RankingResponse, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := c.Rank(ctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Feed 请求 Phoenix 打分后在本地跑 rerank 流水线，返回按最终分排序的候选。
// inNetwork 判断作者是否在用户关注网络内，为 nil 时全部视为站内。
func (c *Client) Feed(ctx context.Context, req *core.RankingRequest, p *rerank.Pipeline, inNetwork func(authorID string) bool) ([]*rerank.ScoredCandidate, error) {
	resp, err := c.Rank(ctx, req)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = rerank.NewPipeline(rerank.DefaultConfig())
	}
	return p.Score(rerank.FromResponse(req.Candidates, resp, inNetwork)), nil
}
