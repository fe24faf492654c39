package rank

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feature"
)

// stubModel 返回固定矩阵，并记录收到的 batch / embeddings。
type stubModel struct {
	mu        sync.Mutex
	scores    *core.ScoreMatrix
	err       error
	initErr   error
	initCalls int
	batch     *core.FeatureBatch
	emb       *core.EmbeddingSet
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Initialize(_ context.Context, _ core.ModelConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	return m.initErr
}

func (m *stubModel) Score(_ context.Context, batch *core.FeatureBatch, emb *core.EmbeddingSet) (*core.ScoreMatrix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch, m.emb = batch, emb
	return m.scores, m.err
}

func testModelConfig() core.ModelConfig {
	cfg := core.DefaultModelConfig()
	cfg.EmbSize = 8
	return cfg
}

func TestService_NotInitialized(t *testing.T) {
	svc := NewService(NewRanker(testModelConfig(), &stubModel{}))
	assert.False(t, svc.IsReady())
	assert.Nil(t, svc.Ready())

	_, err := svc.Rank(context.Background(), &core.RankingRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.True(t, core.IsNotInitialized(err))
}

func TestService_InitializeIdempotent(t *testing.T) {
	m := &stubModel{scores: matrix(10)}
	svc := NewService(NewRanker(testModelConfig(), m))
	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Initialize(context.Background()))
	assert.True(t, svc.IsReady())
	assert.Equal(t, 1, m.initCalls)
	assert.Equal(t, "stub", svc.Ready().ModelName())
}

func TestRanker_InitializeFailure(t *testing.T) {
	boom := errors.New("weights missing")
	svc := NewService(NewRanker(testModelConfig(), &stubModel{initErr: boom}))
	err := svc.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, svc.IsReady())

	_, err = NewRanker(testModelConfig(), nil).Initialize(context.Background())
	require.Error(t, err)
}

func TestReady_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("device lost")
	ready, err := NewRanker(testModelConfig(), &stubModel{err: boom}).Initialize(context.Background())
	require.NoError(t, err)

	_, err = ready.Rank(context.Background(), &core.RankingRequest{Candidates: []core.PostFeatures{{PostID: "a"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "device lost")
}

func TestReady_InvalidOutput(t *testing.T) {
	bad := core.NewTensor[float64](1, 10, 5)
	nan := core.NewTensor[float64](1, 10, core.NumObjectives)
	nan.Data[0] = math.NaN()
	inf := core.NewTensor[float64](1, 10, core.NumObjectives)
	inf.Data[core.NumObjectives+3] = math.Inf(-1)
	tests := []struct {
		name   string
		scores *core.ScoreMatrix
	}{
		{"nil", nil},
		{"wrong columns", &bad},
		{"data mismatch", &core.ScoreMatrix{Shape: []int{1, 2, core.NumObjectives}, Data: []float64{1}}},
		{"nan", &nan},
		{"inf", &inf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, err := NewRanker(testModelConfig(), &stubModel{scores: tt.scores}).Initialize(context.Background())
			require.NoError(t, err)
			_, err = ready.Rank(context.Background(), &core.RankingRequest{Candidates: []core.PostFeatures{{PostID: "a"}}})
			require.Error(t, err)
			assert.Equal(t, core.ErrorCodeInvalidOutput, core.GetDomainError(err).Code)
		})
	}
}

func TestReady_EndToEnd(t *testing.T) {
	cfg := testModelConfig()

	// 候选 A：视频 10s；候选 B：非视频
	rowA := make([]float64, core.NumObjectives)
	rowA[0] = 0.5  // like
	rowA[1] = 0.1  // reply
	rowA[2] = 0.05 // repost
	rowA[4] = 0.2  // click
	rowA[6] = 0.4  // video_view
	rowA[10] = 0.5 // dwell
	rowA[18] = 1.0 // dwell_time

	rowB := make([]float64, core.NumObjectives)
	rowB[0] = 0.8   // like
	rowB[6] = 0.9   // video_view，无时长不计入
	rowB[14] = 0.4  // not_interested
	rowB[15] = 0.02 // block

	// 填充槽位给一个很高的 like，必须被忽略
	pad := make([]float64, core.NumObjectives)
	pad[0] = 0.99
	rows := [][]float64{rowA, rowB}
	for i := 2; i < cfg.CandidateSeqLen; i++ {
		rows = append(rows, pad)
	}
	m := &stubModel{scores: matrix(cfg.CandidateSeqLen, rows...)}

	ready, err := NewRanker(cfg, m).Initialize(context.Background())
	require.NoError(t, err)

	req := &core.RankingRequest{
		UserID: "user-1",
		HistoryPosts: []core.PostFeatures{
			{PostID: "h1", AuthorID: "ha", TextHash: 111, AuthorHash: 222, ProductSurface: 1},
		},
		HistoryActions: [][]float64{{1.0, 0.0}},
		Candidates: []core.PostFeatures{
			{PostID: "A", AuthorID: "x", TextHash: 1, AuthorHash: 2, VideoDurationSeconds: ptr(10.0)},
			{PostID: "B", AuthorID: "y", TextHash: 3, AuthorHash: 4},
		},
	}
	resp, err := ready.Rank(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Scores, 2)

	// 0.5*1.0 + 0.1*1.6 + 0.05*2.0 + 0.2*0.4 + 0.4*0.5 + 0.5*0.2 + 1.0*0.1 = 1.24
	a := resp.Scores[0]
	assert.Equal(t, "A", a.PostID)
	assert.InDelta(t, 1.24, a.WeightedScore, 1e-12)
	assert.Equal(t, 2, a.Rank)

	// 0.8*1.0 + 0.4*-2.5 + 0.02*-5.0 = -0.3 -> +1.0 = 0.7
	b := resp.Scores[1]
	assert.Equal(t, "B", b.PostID)
	assert.InDelta(t, 0.7, b.WeightedScore, 1e-12)
	assert.Equal(t, 1, b.Rank)
	assert.Equal(t, 0.9, b.PhoenixScores.VideoView)

	// batch 内容
	batch := m.batch
	require.NotNil(t, batch)
	assert.Equal(t, feature.MultiHashes("111", 2, core.DefaultVocabSize), batch.HistoryPostHashes.Row(0, 0))
	assert.Equal(t, feature.MultiHashes("222", 2, core.DefaultVocabSize), batch.HistoryAuthorHashes.Row(0, 0))
	assert.Equal(t, int32(1), batch.HistoryProductSurface.At(0, 0))
	wantActions := make([]float32, cfg.NumActions)
	wantActions[0] = 1
	assert.Equal(t, wantActions, batch.HistoryActions.Row(0, 0))
	assert.Equal(t, []int{1, cfg.HistorySeqLen, cfg.NumActions}, batch.HistoryActions.Shape)

	// embeddings 与 batch 对齐
	id := batch.CandidatePostHashes.At(0, 0, 0)
	assert.Equal(t, feature.Embedding(id, cfg.EmbSize), m.emb.CandidatePostEmbeddings.Row(0, 0, 0))
	assert.Equal(t, make([]float32, cfg.EmbSize), m.emb.CandidatePostEmbeddings.Row(0, 5, 0))
}

func TestReady_ConcurrentRequests(t *testing.T) {
	row := make([]float64, core.NumObjectives)
	row[0] = 0.5
	ready, err := NewRanker(testModelConfig(), &stubModel{scores: matrix(10, row)}).Initialize(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ready.Rank(context.Background(), &core.RankingRequest{
				UserID:     "u",
				Candidates: []core.PostFeatures{{PostID: "p", TextHash: 9}},
			})
			assert.NoError(t, err)
			assert.Equal(t, 1, resp.Scores[0].Rank)
		}()
	}
	wg.Wait()
}
