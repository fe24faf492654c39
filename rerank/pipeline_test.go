package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
)

func ptr(v float64) *float64 { return &v }

func scorer(threshold, offset float64) *WeightedScorer {
	return &WeightedScorer{Weights: DefaultActionWeights(), VideoViewThreshold: threshold, Offset: offset}
}

func cand(post, author string, oon bool, scores core.PhoenixScores) *ScoredCandidate {
	return NewScoredCandidate(core.PostFeatures{PostID: post, AuthorID: author}, scores, oon)
}

func TestWeightedScorer(t *testing.T) {
	t.Run("share_dm and dwell_time", func(t *testing.T) {
		got := scorer(6, 1).Score(core.PhoenixScores{ShareDM: 1, DwellTime: 2}, nil)
		assert.InDelta(t, 0.8+0.2, got, 1e-9)
	})
	t.Run("video view threshold", func(t *testing.T) {
		s := scorer(6, 0)
		p := core.PhoenixScores{VideoView: 1}
		assert.InDelta(t, 0.0, s.Score(p, ptr(4)), 1e-9)
		assert.InDelta(t, 0.5, s.Score(p, ptr(8)), 1e-9)
		assert.InDelta(t, 0.0, s.Score(p, nil), 1e-9)
	})
	t.Run("negative offset", func(t *testing.T) {
		assert.InDelta(t, -4.0, scorer(6, 1).Score(core.PhoenixScores{Block: 1}, nil), 1e-9)
	})
	t.Run("defaults", func(t *testing.T) {
		s := NewWeightedScorer()
		assert.Equal(t, 6.0, s.VideoViewThreshold)
		assert.Equal(t, 1.0, s.Offset)
		assert.Equal(t, -6.0, s.Weights.Report)
	})
}

func TestAuthorDiversity(t *testing.T) {
	d := &AuthorDiversity{Config: AuthorDiversityConfig{Decay: 0.5, Floor: 0.1}}
	assert.InDelta(t, 1.0, d.Multiplier(0), 1e-9)
	assert.InDelta(t, 0.55, d.Multiplier(1), 1e-9)
	assert.InDelta(t, 0.325, d.Multiplier(2), 1e-9)

	cands := []*ScoredCandidate{
		cand("p1", "a", false, core.PhoenixScores{}),
		cand("p2", "a", false, core.PhoenixScores{}),
		cand("p3", "b", false, core.PhoenixScores{}),
	}
	for _, c := range cands {
		c.WeightedScore = 2
	}
	d.Apply(cands)
	assert.InDelta(t, 1.0, cands[0].DiversityMultiplier, 1e-9)
	assert.InDelta(t, 0.55, cands[1].DiversityMultiplier, 1e-9)
	assert.InDelta(t, 1.1, cands[1].Score, 1e-9)
	assert.InDelta(t, 1.0, cands[2].DiversityMultiplier, 1e-9)
}

func TestOONScorer(t *testing.T) {
	o := &OONScorer{Multiplier: 0.5}
	oon := cand("p", "a", true, core.PhoenixScores{})
	oon.Score = 2
	in := cand("q", "b", false, core.PhoenixScores{})
	in.Score = 2
	o.Apply([]*ScoredCandidate{oon, in})
	assert.InDelta(t, 1.0, oon.Score, 1e-9)
	assert.InDelta(t, 0.5, oon.OONMultiplier, 1e-9)
	assert.InDelta(t, 2.0, in.Score, 1e-9)
	assert.Equal(t, 1.0, in.OONMultiplier)
}

func TestPipeline_OrdersByFinalScore(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg)
	p.Weighted.Offset = 0

	out := p.Score([]*ScoredCandidate{
		cand("low", "a", false, core.PhoenixScores{Block: 1}),
		cand("high", "b", false, core.PhoenixScores{Like: 1}),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].PostID)
}

func TestPipeline_DiversityAndOON(t *testing.T) {
	p := NewPipeline(Config{
		Weights:         DefaultActionWeights(),
		AuthorDiversity: AuthorDiversityConfig{Decay: 0.5, Floor: 0.1},
		OONMultiplier:   0.5,
	})
	p.Weighted.Offset = 0

	out := p.Score([]*ScoredCandidate{
		cand("primary", "author", false, core.PhoenixScores{Like: 1}),
		cand("secondary", "author", true, core.PhoenixScores{Like: 0.8}),
	})
	require.Len(t, out, 2)
	primary, secondary := out[0], out[1]
	assert.Equal(t, "primary", primary.PostID)
	assert.InDelta(t, 1.0, primary.DiversityMultiplier, 1e-9)
	assert.Less(t, secondary.DiversityMultiplier, primary.DiversityMultiplier)
	assert.Less(t, secondary.OONMultiplier, 1.0)
	assert.Greater(t, primary.Score, secondary.Score)
	// 0.8 * 0.55 * 0.5
	assert.InDelta(t, 0.22, secondary.Score, 1e-9)
}

func TestPipeline_StableAndTopN(t *testing.T) {
	p := NewPipeline(DefaultConfig())
	p.TopN = 2
	out := p.Score([]*ScoredCandidate{
		cand("a", "x", false, core.PhoenixScores{Like: 0.5}),
		nil,
		cand("b", "y", false, core.PhoenixScores{Like: 0.5}),
		cand("c", "z", false, core.PhoenixScores{Like: 0.5}),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].PostID)
	assert.Equal(t, "b", out[1].PostID)
}

func TestFromResponse(t *testing.T) {
	cands := []core.PostFeatures{
		{PostID: "p1", AuthorID: "friend", VideoDurationSeconds: ptr(30)},
		{PostID: "p2", AuthorID: "stranger"},
	}
	resp := &core.RankingResponse{Scores: []core.CandidateScore{
		{PostID: "p1", PhoenixScores: core.PhoenixScores{Like: 0.3}},
		{PostID: "p2", PhoenixScores: core.PhoenixScores{Like: 0.6}},
		{PostID: "extra"},
	}}
	following := map[string]bool{"friend": true}
	out := FromResponse(cands, resp, func(a string) bool { return following[a] })
	require.Len(t, out, 2)
	assert.False(t, out[0].IsOON)
	assert.True(t, out[1].IsOON)
	assert.Equal(t, 30.0, *out[0].VideoDurationSeconds)
	assert.Equal(t, 0.6, out[1].PhoenixScores.Like)

	assert.False(t, FromResponse(cands, resp, nil)[1].IsOON)
	assert.Nil(t, FromResponse(cands, nil, nil))
}
