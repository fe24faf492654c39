package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/utils"
)

func candidate(id string, like, block, weighted float64, rank int) core.CandidateScore {
	return core.CandidateScore{
		PostID:        id,
		PhoenixScores: core.PhoenixScores{Like: like, Block: block},
		WeightedScore: weighted,
		Rank:          rank,
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{`rank <= 3`, false},
		{`scores.like > 0.5 && weighted_score > 1.0`, false},
		{`scores["not_interested"] < 0.1`, false},
		{`post_id.startsWith("ad-") || user_id == "u1"`, false},
		{`rank + 1`, true},         // 非 bool
		{`scores.like >`, true},    // 语法错误
		{`unknown_var == 1`, true}, // 未声明变量
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Compile(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpr_Evaluate(t *testing.T) {
	c := candidate("p1", 0.8, 0.0, 1.5, 2)

	e, err := Compile(`scores.like > 0.5 && rank <= 3`)
	require.NoError(t, err)
	ok, err := e.Evaluate("u", &c)
	require.NoError(t, err)
	assert.True(t, ok)

	e, err = Compile(`weighted_score > 2.0`)
	require.NoError(t, err)
	ok, err = e.Evaluate("u", &c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, `weighted_score > 2.0`, e.String())
}

func TestRuleSet_Apply(t *testing.T) {
	rs, err := CompileRules([]Rule{
		{Name: "top3", Expr: `rank <= 3`},
		{Name: "risky", Expr: `scores.block > 0.01`, Value: "block_risk"},
		// 缺失 key 会求值失败，规则对该候选跳过
		{Name: "broken", Expr: `scores["nope"] > 0.0`},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Len())

	resp := &core.RankingResponse{Scores: []core.CandidateScore{
		candidate("a", 0.9, 0.0, 1.0, 1),
		candidate("b", 0.1, 0.5, 0.2, 4),
	}}
	rs.Apply("u1", resp)

	assert.Equal(t, map[string]utils.Label{"top3": {Value: "top3", Source: LabelSource}}, resp.Scores[0].Labels)
	assert.Equal(t, map[string]utils.Label{"risky": {Value: "block_risk", Source: LabelSource}}, resp.Scores[1].Labels)
}

func TestCompileRules_Errors(t *testing.T) {
	_, err := CompileRules([]Rule{{Expr: `rank == 1`}})
	assert.Error(t, err)

	_, err = CompileRules([]Rule{{Name: "a", Expr: `rank == 1`}, {Name: "a", Expr: `rank == 2`}})
	assert.Error(t, err)

	_, err = CompileRules([]Rule{{Name: "bad", Expr: `rank ==`}})
	assert.ErrorContains(t, err, `label rule "bad"`)

	// nil RuleSet 安全
	var rs *RuleSet
	rs.Apply("u", &core.RankingResponse{Scores: []core.CandidateScore{{PostID: "x"}}})
}
