// Package builders 注册内置打分模型，供 config.BuildModel 使用。
package builders

import (
	"fmt"
	"time"

	"github.com/rushteam/phoenix/config"
	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/model"
	"github.com/rushteam/phoenix/pkg/conv"
)

func init() {
	config.Register("kserve", BuildKServeModel)
	config.Register("rpc", BuildRPCModel)
	config.Register("two_tower", BuildTwoTowerModel)
}

func breakerFrom(params map[string]any) model.BreakerConfig {
	breaker := model.DefaultBreakerConfig()
	if n := conv.ConfigGetInt64(params, "breaker_failures", 0); n > 0 {
		breaker.FailureThreshold = uint32(n)
	}
	if sec := conv.ConfigGetInt64(params, "breaker_timeout", 0); sec > 0 {
		breaker.Timeout = time.Duration(sec) * time.Second
	}
	return breaker
}

func timeoutFrom(params map[string]any) time.Duration {
	sec := conv.ConfigGetFloat64(params, "timeout", 0)
	return time.Duration(sec * float64(time.Second))
}

// BuildRPCModel 构建远程模型。
//
// params：
//
//	endpoint: http://model:8500   # 必填
//	timeout: 5                    # 秒
//	breaker_failures: 5           # 连续失败多少次后熔断
//	breaker_timeout: 30           # 熔断持续秒数
func BuildRPCModel(params map[string]any) (core.ScoringModel, error) {
	endpoint := conv.ConfigGet(params, "endpoint", "")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	opts := []model.RPCOption{model.WithRPCBreaker(breakerFrom(params))}
	if timeout := timeoutFrom(params); timeout > 0 {
		opts = append(opts, model.WithRPCTimeout(timeout))
	}
	return model.NewRPCModel(endpoint, opts...), nil
}

// BuildKServeModel 构建 KServe V2 模型。
//
// params：
//
//	endpoint: http://kserve:8080   # 必填
//	model_name: phoenix            # 必填
//	model_version: "3"
//	output_name: scores
//	timeout: 5
//	auth_type: bearer              # basic | bearer | api_key
//	auth_token: xxx
//	auth_username / auth_password / auth_api_key
//	breaker_failures / breaker_timeout 同 rpc
func BuildKServeModel(params map[string]any) (core.ScoringModel, error) {
	endpoint := conv.ConfigGet(params, "endpoint", "")
	name := conv.ConfigGet(params, "model_name", "")
	if endpoint == "" || name == "" {
		return nil, fmt.Errorf("endpoint and model_name are required")
	}
	opts := []model.KServeOption{model.WithKServeBreaker(breakerFrom(params))}
	if v := conv.ConfigGetString(params, "model_version", ""); v != "" {
		opts = append(opts, model.WithKServeVersion(v))
	}
	if v := conv.ConfigGet(params, "output_name", ""); v != "" {
		opts = append(opts, model.WithKServeOutputName(v))
	}
	if timeout := timeoutFrom(params); timeout > 0 {
		opts = append(opts, model.WithKServeTimeout(timeout))
	}
	if t := conv.ConfigGet(params, "auth_type", ""); t != "" {
		opts = append(opts, model.WithKServeAuth(&model.AuthConfig{
			Type:     t,
			Username: conv.ConfigGet(params, "auth_username", ""),
			Password: conv.ConfigGet(params, "auth_password", ""),
			Token:    conv.ConfigGet(params, "auth_token", ""),
			APIKey:   conv.ConfigGet(params, "auth_api_key", ""),
		}))
	}
	return model.NewKServeModel(endpoint, name, opts...), nil
}

// BuildTwoTowerModel 构建本地双塔模型。scale / bias 可选，给出时长度必须等于目标数。
func BuildTwoTowerModel(params map[string]any) (core.ScoringModel, error) {
	m := model.NewTwoTowerModel()
	if v, ok := params["scale"]; ok {
		scale := conv.SliceAnyToFloat64(v)
		if len(scale) != core.NumObjectives {
			return nil, fmt.Errorf("scale: want %d values, got %d", core.NumObjectives, len(scale))
		}
		copy(m.Scale[:], scale)
	}
	if v, ok := params["bias"]; ok {
		bias := conv.SliceAnyToFloat64(v)
		if len(bias) != core.NumObjectives {
			return nil, fmt.Errorf("bias: want %d values, got %d", core.NumObjectives, len(bias))
		}
		copy(m.Bias[:], bias)
	}
	return m, nil
}
