package dsl

import (
	"fmt"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/log"
	"github.com/rushteam/phoenix/pkg/utils"
)

// LabelSource 是规则写入的 Label.Source。
const LabelSource = "rule"

// Rule 是一条标签规则配置。
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
	// Value 为空时使用 Name
	Value string `yaml:"value" json:"value"`
}

type compiledRule struct {
	Rule
	expr *Expr
}

// RuleSet 是一组编译好的规则。零值（或 nil）可用，不产生任何 Label。
type RuleSet struct {
	rules []compiledRule
}

// CompileRules 编译全部规则，任意一条失败都返回错误（启动阶段失败）。
func CompileRules(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("label rule %q: name is required", r.Expr)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("label rule %q: duplicated name", r.Name)
		}
		seen[r.Name] = true
		expr, err := Compile(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("label rule %q: %w", r.Name, err)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, expr: expr})
	}
	return rs, nil
}

// Len 返回规则数。
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Apply 对响应中的每个候选求值并写入 Label。求值出错的规则对该候选跳过。
func (rs *RuleSet) Apply(userID string, resp *core.RankingResponse) {
	if rs.Len() == 0 || resp == nil {
		return
	}
	for i := range resp.Scores {
		c := &resp.Scores[i]
		for _, r := range rs.rules {
			ok, err := r.expr.Evaluate(userID, c)
			if err != nil {
				log.Debugf("label rule %s skipped for post %s: %v", r.Name, c.PostID, err)
				continue
			}
			if !ok {
				continue
			}
			value := r.Value
			if value == "" {
				value = r.Name
			}
			c.PutLabel(r.Name, utils.Label{Value: value, Source: LabelSource})
		}
	}
}
