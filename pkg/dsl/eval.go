// Package dsl 提供基于 CEL 的标签规则：对打分结果求布尔表达式，命中时给候选打上 Label。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/phoenix/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量类型
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("scores", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("weighted_score", cel.DoubleType),
		cel.Variable("rank", cel.IntType),
		cel.Variable("post_id", cel.StringType),
		cel.Variable("user_id", cel.StringType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Expr 是编译好的布尔表达式，可并发求值。
//
// 可用变量：
//   - scores：目标名 -> 概率，例如 scores.like / scores["not_interested"]
//   - weighted_score：加权分
//   - rank：名次（从 1 开始）
//   - post_id / user_id
//
// 示例：
//   - `rank <= 3`
//   - `scores.like > 0.5 && weighted_score > 1.0`
//   - `scores.block > 0.01 || scores.report > 0.01`
type Expr struct {
	source string
	prg    cel.Program
}

// Compile 编译表达式，表达式必须返回 bool。
func Compile(expr string) (*Expr, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Expr{source: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (e *Expr) String() string {
	return e.source
}

// Evaluate 对单个候选求值。
func (e *Expr) Evaluate(userID string, c *core.CandidateScore) (bool, error) {
	out, _, err := e.prg.Eval(buildInput(userID, c))
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(userID string, c *core.CandidateScore) map[string]any {
	return map[string]any{
		"scores":         c.PhoenixScores.Map(),
		"weighted_score": c.WeightedScore,
		"rank":           int64(c.Rank),
		"post_id":        c.PostID,
		"user_id":        userID,
	}
}
