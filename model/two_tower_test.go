package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feature"
)

func smallConfig() core.ModelConfig {
	cfg := core.DefaultModelConfig()
	cfg.EmbSize = 16
	cfg.HistorySeqLen = 4
	cfg.CandidateSeqLen = 3
	return cfg
}

func buildInputs(cfg core.ModelConfig, req *core.RankingRequest) (*core.FeatureBatch, *core.EmbeddingSet) {
	batch := feature.BuildBatch(req, feature.BatchConfigFrom(cfg))
	return batch, feature.BuildEmbeddings(batch, cfg.EmbSize, feature.NewEmbeddingTable())
}

func TestTwoTower_RequiresInitialize(t *testing.T) {
	m := NewTwoTowerModel()
	batch, emb := buildInputs(smallConfig(), &core.RankingRequest{})
	_, err := m.Score(context.Background(), batch, emb)
	require.Error(t, err)
	assert.True(t, core.IsNotInitialized(err))

	bad := smallConfig()
	bad.EmbSize = 0
	require.Error(t, m.Initialize(context.Background(), bad))
}

func TestTwoTower_Score(t *testing.T) {
	cfg := smallConfig()
	m := NewTwoTowerModel()
	require.NoError(t, m.Initialize(context.Background(), cfg))

	req := &core.RankingRequest{
		UserID:         "u1",
		HistoryPosts:   []core.PostFeatures{{TextHash: 10, AuthorHash: 20}},
		HistoryActions: [][]float64{{1, 1}},
		Candidates: []core.PostFeatures{
			{PostID: "same", TextHash: 10, AuthorHash: 20},
			{PostID: "other", TextHash: 77, AuthorHash: 88},
		},
	}
	batch, emb := buildInputs(cfg, req)
	scores, err := m.Score(context.Background(), batch, emb)
	require.NoError(t, err)
	assert.Equal(t, []int{1, cfg.CandidateSeqLen, core.NumObjectives}, scores.Shape)
	require.True(t, scores.Valid())

	for _, p := range scores.Data {
		assert.True(t, p > 0 && p < 1, "probability out of range: %v", p)
	}

	// 与历史完全相同的候选得到更高的 like 概率
	assert.Greater(t, scores.At(0, 0, 0), scores.At(0, 1, 0))

	// 填充槽位相似度为 0
	assert.InDelta(t, sigmoid(-1.0), scores.At(0, 2, 0), 1e-12)

	// 确定性
	again, err := m.Score(context.Background(), batch, emb)
	require.NoError(t, err)
	assert.Equal(t, scores.Data, again.Data)
}

func TestTwoTower_ZeroActionHistoryIgnored(t *testing.T) {
	cfg := smallConfig()
	m := NewTwoTowerModel()
	require.NoError(t, m.Initialize(context.Background(), cfg))

	cands := []core.PostFeatures{{PostID: "p", TextHash: 5, AuthorHash: 6}}
	withoutHistory, emb1 := buildInputs(cfg, &core.RankingRequest{UserID: "u", Candidates: cands})
	passiveHistory, emb2 := buildInputs(cfg, &core.RankingRequest{
		UserID:       "u",
		HistoryPosts: []core.PostFeatures{{TextHash: 99, AuthorHash: 98}},
		Candidates:   cands,
	})

	a, err := m.Score(context.Background(), withoutHistory, emb1)
	require.NoError(t, err)
	b, err := m.Score(context.Background(), passiveHistory, emb2)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, -1.0, cosine([]float64{1, 0}, []float64{-3, 0}), 1e-12)
	assert.Equal(t, 0.0, cosine([]float64{0, 0}, []float64{1, 1}))
	assert.False(t, math.IsNaN(cosine(nil, nil)))
}
