package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/log"
)

// ResponseCache 缓存完整的排序响应，key 为请求内容的摘要。
// 相同请求并发到达时只打分一次（singleflight），每个调用方拿到独立解码的副本。
//
// 合并后的打分不继承任何单个调用方的取消，只受 CallTimeout 约束；
// 每个调用方各自等待自己的 ctx。
type ResponseCache struct {
	// CallTimeout 是合并打分的超时，默认 DefaultCallTimeout
	CallTimeout time.Duration

	store  core.Store
	ttl    int
	prefix string
	group  singleflight.Group
}

// DefaultCallTimeout 是合并打分的默认超时。
const DefaultCallTimeout = 30 * time.Second

// NewResponseCache 创建缓存。ttl 单位为秒；prefix 一般由 CachePrefix 生成。
func NewResponseCache(s core.Store, ttl int, prefix string) *ResponseCache {
	return &ResponseCache{store: s, ttl: ttl, prefix: prefix, CallTimeout: DefaultCallTimeout}
}

// CachePrefix 由模型名和模型配置摘要组成，模型或配置变化后旧缓存不再命中。
func CachePrefix(modelName string, cfg core.ModelConfig) string {
	data, _ := json.Marshal(cfg)
	sum := sha256.Sum256(data)
	return modelName + ":" + hex.EncodeToString(sum[:6]) + ":"
}

// Key 计算请求的缓存 key。
func (c *ResponseCache) Key(req *core.RankingRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	sum := sha256.Sum256(data)
	return c.prefix + "rank:" + hex.EncodeToString(sum[:]), nil
}

// Do 先查缓存，未命中时调用 fn 并回写。hit 表示结果来自缓存。
// 缓存读写失败只记录日志，不影响排序。
func (c *ResponseCache) Do(ctx context.Context, req *core.RankingRequest,
	fn func(ctx context.Context) (*core.RankingResponse, error)) (resp *core.RankingResponse, hit bool, err error) {
	key, err := c.Key(req)
	if err != nil {
		return nil, false, err
	}

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if resp, err := decodeResponse(data); err == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return resp, true, nil
		}
		log.Warnf("rank cache: drop corrupt entry %s", key)
		_ = c.store.Delete(ctx, key)
		cacheLookups.WithLabelValues("error").Inc()
	case core.IsStoreNotFound(err):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		log.Warnf("rank cache: get %s from %s: %v", key, c.store.Name(), err)
		cacheLookups.WithLabelValues("error").Inc()
	}

	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout())
		defer cancel()
		resp, err := fn(shared)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		if err := c.store.Set(shared, key, encoded, c.ttl); err != nil {
			log.Warnf("rank cache: set %s to %s: %v", key, c.store.Name(), err)
		}
		return encoded, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		resp, err = decodeResponse(res.Val.([]byte))
		return resp, false, err
	}
}

func (c *ResponseCache) callTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return c.CallTimeout
}

func decodeResponse(data []byte) (*core.RankingResponse, error) {
	var resp core.RankingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}
