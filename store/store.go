// Package store 提供 core.Store 的实现：内存与 Redis。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	s, err := store.New(ctx, store.Config{Type: "redis", Redis: store.RedisConfig{Addr: "localhost:6379"}})
package store

import (
	"context"
	"fmt"

	"github.com/rushteam/phoenix/core"
)

// Config 选择存储后端。
type Config struct {
	Type  string      `yaml:"type"` // memory | redis
	Redis RedisConfig `yaml:"redis"`
}

// New 按配置创建存储。Type 为空时使用内存存储。
func New(ctx context.Context, cfg Config) (core.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported,
			fmt.Sprintf("store: unsupported type %q", cfg.Type))
	}
}
