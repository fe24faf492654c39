// Package history 为没有携带历史行为的请求补齐用户的近期互动历史。
//
// 数据来源由 Provider 抽象：
//   - StoreProvider：core.Store（内存 / Redis）中的 JSON 记录
//   - FeastProvider：Feast 在线特征
//
// 历史获取失败不会让排序失败：Enricher 记录告警后按空历史继续。
package history

import (
	"context"
	"time"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/log"
)

// Record 是一个用户的互动历史，Posts[i] 与 Actions[i] 按下标对齐，最近的在前。
type Record struct {
	Posts   []core.PostFeatures `json:"posts"`
	Actions [][]float64         `json:"actions"`
}

// Len 返回帖子条数。
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Posts)
}

// Provider 获取用户历史。用户不存在时返回空 Record 而不是错误。
type Provider interface {
	Name() string
	Fetch(ctx context.Context, userID string, limit int) (*Record, error)
}

// Enricher 在请求没有历史时从 Provider 补齐。
type Enricher struct {
	provider Provider
	limit    int
	timeout  time.Duration
}

// NewEnricher 创建 Enricher。limit 通常取 history_len；timeout <= 0 表示不额外设置超时。
func NewEnricher(p Provider, limit int, timeout time.Duration) *Enricher {
	return &Enricher{provider: p, limit: limit, timeout: timeout}
}

// Enrich 返回补齐后的请求。请求已带历史、没有 user_id 或 Provider 出错时原样返回。
// 不修改入参。
func (e *Enricher) Enrich(ctx context.Context, req *core.RankingRequest) *core.RankingRequest {
	if e == nil || e.provider == nil || req == nil {
		return req
	}
	if len(req.HistoryPosts) > 0 || req.UserID == "" {
		return req
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rec, err := e.provider.Fetch(ctx, req.UserID, e.limit)
	if err != nil {
		log.Warnf("history provider %s failed for user %s, ranking with empty history: %v", e.provider.Name(), req.UserID, err)
		return req
	}
	if rec.Len() == 0 {
		return req
	}

	out := *req
	out.HistoryPosts = rec.Posts
	out.HistoryActions = rec.Actions
	if e.limit > 0 && len(out.HistoryPosts) > e.limit {
		out.HistoryPosts = out.HistoryPosts[:e.limit]
	}
	if e.limit > 0 && len(out.HistoryActions) > e.limit {
		out.HistoryActions = out.HistoryActions[:e.limit]
	}
	return &out
}
