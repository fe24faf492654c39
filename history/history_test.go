package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/store"
)

type fakeProvider struct {
	rec   *Record
	err   error
	calls int
	limit int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(_ context.Context, _ string, limit int) (*Record, error) {
	f.calls++
	f.limit = limit
	return f.rec, f.err
}

func TestEnricher(t *testing.T) {
	rec := &Record{
		Posts:   []core.PostFeatures{{PostID: "h1"}, {PostID: "h2"}, {PostID: "h3"}},
		Actions: [][]float64{{1}, {0, 1}, {1, 1}},
	}

	t.Run("fills empty history", func(t *testing.T) {
		p := &fakeProvider{rec: rec}
		req := &core.RankingRequest{UserID: "u1"}
		out := NewEnricher(p, 2, 0).Enrich(context.Background(), req)
		require.Len(t, out.HistoryPosts, 2)
		assert.Equal(t, "h1", out.HistoryPosts[0].PostID)
		assert.Len(t, out.HistoryActions, 2)
		assert.Equal(t, 2, p.limit)
		// 入参不变
		assert.Empty(t, req.HistoryPosts)
	})

	t.Run("keeps request history", func(t *testing.T) {
		p := &fakeProvider{rec: rec}
		req := &core.RankingRequest{UserID: "u1", HistoryPosts: []core.PostFeatures{{PostID: "mine"}}}
		out := NewEnricher(p, 10, 0).Enrich(context.Background(), req)
		assert.Same(t, req, out)
		assert.Equal(t, 0, p.calls)
	})

	t.Run("anonymous user", func(t *testing.T) {
		p := &fakeProvider{rec: rec}
		req := &core.RankingRequest{}
		assert.Same(t, req, NewEnricher(p, 10, 0).Enrich(context.Background(), req))
		assert.Equal(t, 0, p.calls)
	})

	t.Run("provider failure degrades to empty history", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("timeout")}
		req := &core.RankingRequest{UserID: "u1"}
		out := NewEnricher(p, 10, 0).Enrich(context.Background(), req)
		assert.Same(t, req, out)
		assert.Empty(t, out.HistoryPosts)
	})

	t.Run("nil enricher", func(t *testing.T) {
		var e *Enricher
		req := &core.RankingRequest{UserID: "u1"}
		assert.Same(t, req, e.Enrich(context.Background(), req))
	})
}

func TestStoreProvider(t *testing.T) {
	mem := store.NewMemoryStore()
	defer mem.Close()
	p := NewStoreProvider(mem, "", 0)
	ctx := context.Background()
	assert.Equal(t, "store:memory", p.Name())

	// 不存在的用户返回空历史
	rec, err := p.Fetch(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Len())

	video := 12.0
	require.NoError(t, p.Append(ctx, "u1", core.PostFeatures{PostID: "p1", TextHash: 11}, []float64{1}, 2))
	require.NoError(t, p.Append(ctx, "u1", core.PostFeatures{PostID: "p2", VideoDurationSeconds: &video}, []float64{0, 1}, 2))
	require.NoError(t, p.Append(ctx, "u1", core.PostFeatures{PostID: "p3"}, []float64{0, 0, 1}, 2))

	rec, err = p.Fetch(ctx, "u1", 0)
	require.NoError(t, err)
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, "p3", rec.Posts[0].PostID)
	assert.Equal(t, "p2", rec.Posts[1].PostID)
	assert.Equal(t, 12.0, *rec.Posts[1].VideoDurationSeconds)
	assert.Equal(t, [][]float64{{0, 0, 1}, {0, 1}}, rec.Actions)

	rec, err = p.Fetch(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Len())
	assert.Len(t, rec.Actions, 1)

	// 损坏的记录
	require.NoError(t, mem.Set(ctx, DefaultKeyPrefix+"bad", []byte("{")))
	_, err = p.Fetch(ctx, "bad", 0)
	require.Error(t, err)
	assert.Equal(t, core.ModuleHistory, core.GetDomainError(err).Module)
}
