package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/rerank"
)

// echoServer 按候选顺序返回 like 概率递减的响应。
func echoServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, "/rank", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req core.RankingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.UserID == "broken" {
			http.Error(w, `{"detail":"model exploded"}`, http.StatusInternalServerError)
			return
		}
		if req.UserID == "garbage" {
			_, _ = w.Write([]byte("not json"))
			return
		}
		resp := core.RankingResponse{}
		for i, c := range req.Candidates {
			s := core.CandidateScore{PostID: c.PostID, Rank: i + 1}
			s.PhoenixScores.Like = 1 - 0.1*float64(i)
			s.WeightedScore = s.PhoenixScores.Like
			resp.Scores = append(resp.Scores, s)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Rank(t *testing.T) {
	srv := echoServer(t, nil)
	c := New(srv.URL + "/")
	assert.Equal(t, srv.URL, c.Endpoint)

	resp, err := c.Rank(context.Background(), &core.RankingRequest{
		UserID:     "u",
		Candidates: []core.PostFeatures{{PostID: "a"}, {PostID: "b"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Scores, 2)
	assert.Equal(t, "b", resp.Scores[1].PostID)
	assert.Equal(t, 2, resp.Scores[1].Rank)
}

func TestClient_RankErrors(t *testing.T) {
	srv := echoServer(t, nil)
	c := New(srv.URL)

	_, err := c.Rank(context.Background(), &core.RankingRequest{UserID: "broken"})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, se.Body, "model exploded")

	_, err = c.Rank(context.Background(), &core.RankingRequest{UserID: "garbage"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse failed")

	_, err = New("http://127.0.0.1:1").Rank(context.Background(), &core.RankingRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_RankBatch(t *testing.T) {
	var calls atomic.Int32
	c := New(echoServer(t, &calls).URL)

	reqs := make([]*core.RankingRequest, 6)
	for i := range reqs {
		reqs[i] = &core.RankingRequest{
			UserID:     "u",
			Candidates: make([]core.PostFeatures, i+1),
		}
	}
	out, err := c.RankBatch(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, out, len(reqs))
	for i, resp := range out {
		assert.Len(t, resp.Scores, i+1)
	}
	assert.Equal(t, int32(len(reqs)), calls.Load())

	reqs[3] = &core.RankingRequest{UserID: "broken"}
	_, err = c.RankBatch(context.Background(), reqs, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request 3")
}

func TestClient_Feed(t *testing.T) {
	c := New(echoServer(t, nil).URL)
	req := &core.RankingRequest{
		UserID: "u",
		Candidates: []core.PostFeatures{
			{PostID: "a", AuthorID: "x"},
			{PostID: "b", AuthorID: "x"},
			{PostID: "c", AuthorID: "y"},
		},
	}
	following := map[string]bool{"x": true}
	feed, err := c.Feed(context.Background(), req, nil, func(author string) bool { return following[author] })
	require.NoError(t, err)
	require.Len(t, feed, 3)

	// a: 1.0; b: 0.9 * 0.73 (作者重复); c: 0.8 * 0.8 (站外)
	assert.Equal(t, "a", feed[0].PostID)
	assert.Equal(t, "b", feed[1].PostID)
	assert.Equal(t, "c", feed[2].PostID)
	assert.True(t, feed[2].IsOON)
	assert.InDelta(t, 0.64, feed[2].Score, 1e-9)

	top := rerank.DefaultConfig()
	top.TopN = 1
	feed, err = c.Feed(context.Background(), req, rerank.NewPipeline(top), nil)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}
