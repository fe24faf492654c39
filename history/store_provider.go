package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rushteam/phoenix/core"
)

// DefaultKeyPrefix 是历史记录在 Store 中的 key 前缀。
const DefaultKeyPrefix = "history:"

// StoreProvider 从 core.Store 中读取 JSON 编码的 Record，key 为 prefix + user_id。
type StoreProvider struct {
	store  core.Store
	prefix string
	ttl    int
}

// NewStoreProvider 创建 StoreProvider。ttl 为写入时的过期秒数，0 表示不过期。
func NewStoreProvider(s core.Store, prefix string, ttl int) *StoreProvider {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &StoreProvider{store: s, prefix: prefix, ttl: ttl}
}

func (p *StoreProvider) Name() string {
	return "store:" + p.store.Name()
}

func (p *StoreProvider) Fetch(ctx context.Context, userID string, limit int) (*Record, error) {
	data, err := p.store.Get(ctx, p.prefix+userID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return &Record{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeInternalError,
			fmt.Sprintf("decode history for %s: %v", userID, err))
	}
	if limit > 0 && len(rec.Posts) > limit {
		rec.Posts = rec.Posts[:limit]
		if len(rec.Actions) > limit {
			rec.Actions = rec.Actions[:limit]
		}
	}
	return &rec, nil
}

// Put 覆盖写入用户历史。
func (p *StoreProvider) Put(ctx context.Context, userID string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return p.store.Set(ctx, p.prefix+userID, data, p.ttl)
}

// Append 把一条互动插到历史最前面，并截断到 maxLen（<= 0 表示不截断）。
// 读改写不是原子的，同一用户的并发追加可能丢失其中一条。
func (p *StoreProvider) Append(ctx context.Context, userID string, post core.PostFeatures, actions []float64, maxLen int) error {
	rec, err := p.Fetch(ctx, userID, 0)
	if err != nil {
		return err
	}
	rec.Posts = append([]core.PostFeatures{post}, rec.Posts...)
	rec.Actions = append([][]float64{actions}, rec.Actions...)
	if maxLen > 0 && len(rec.Posts) > maxLen {
		rec.Posts = rec.Posts[:maxLen]
	}
	if maxLen > 0 && len(rec.Actions) > maxLen {
		rec.Actions = rec.Actions[:maxLen]
	}
	return p.Put(ctx, userID, rec)
}

var _ Provider = (*StoreProvider)(nil)
