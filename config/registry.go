package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/phoenix/core"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/phoenix/config/builders"
// 以触发内置模型的 init 注册。

// ModelBuilder 根据 model.params 构建打分模型。
type ModelBuilder func(params map[string]any) (core.ScoringModel, error)

var (
	defaultBuilders   = make(map[string]ModelBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种模型的构建逻辑。
// 建议在各组件的 init 中调用，例如：func init() { config.Register("rpc", BuildRPCModel) }
func Register(typeName string, builder ModelBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的模型类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// BuildModel 按 model.type 构建打分模型；未注册的类型返回包含已支持列表的错误。
func BuildModel(cfg ModelConfig) (core.ScoringModel, error) {
	defaultBuildersMu.RLock()
	builder, ok := defaultBuilders[cfg.Type]
	defaultBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported model type %q (supported: %v)", cfg.Type, SupportedTypes())
	}
	m, err := builder(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("build model %s: %w", cfg.Type, err)
	}
	return m, nil
}
