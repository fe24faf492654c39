package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
)

type inferInput struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

func newKServeServer(t *testing.T, ready bool, outputs []v2OutputTensor) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/models/phoenix/versions/3/ready", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/v2/models/phoenix/versions/3/infer", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req struct {
			Inputs  []inferInput        `json:"inputs"`
			Outputs []map[string]string `json:"outputs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		byName := make(map[string]inferInput, len(req.Inputs))
		for _, in := range req.Inputs {
			byName[in.Name] = in
		}
		assert.Len(t, byName, 13)
		assert.Equal(t, "INT32", byName["candidate_post_hashes"].Datatype)
		assert.Equal(t, "FP32", byName["candidate_post_embeddings"].Datatype)
		emb := byName["candidate_post_embeddings"]
		n := 1
		for _, d := range emb.Shape {
			n *= d
		}
		assert.Len(t, emb.Data, n)
		assert.Equal(t, []map[string]string{{"name": "scores"}}, req.Outputs)

		_ = json.NewEncoder(w).Encode(v2InferResponse{ModelName: "phoenix", Outputs: outputs})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestKServe(url string) *KServeModel {
	return NewKServeModel(url, "phoenix",
		WithKServeVersion("3"),
		WithKServeAuth(&AuthConfig{Type: "bearer", Token: "secret"}))
}

func TestKServeModel_Score(t *testing.T) {
	cfg := smallConfig()
	data := make([]float64, cfg.CandidateSeqLen*core.NumObjectives)
	data[core.NumObjectives] = 0.7
	srv := newKServeServer(t, true, []v2OutputTensor{
		{Name: "debug", Shape: []int{1}, Datatype: "FP64", Data: []float64{9}},
		{Name: "scores", Shape: []int{1, cfg.CandidateSeqLen, core.NumObjectives}, Datatype: "FP64", Data: data},
	})

	m := newTestKServe(srv.URL)
	_, err := m.Score(context.Background(), &core.FeatureBatch{}, &core.EmbeddingSet{})
	assert.ErrorIs(t, err, core.ErrModelNotInitialized)

	require.NoError(t, m.Initialize(context.Background(), cfg))
	batch, emb := buildInputs(cfg, &core.RankingRequest{Candidates: []core.PostFeatures{{PostID: "a"}, {PostID: "b"}}})
	scores, err := m.Score(context.Background(), batch, emb)
	require.NoError(t, err)
	assert.Equal(t, []int{1, cfg.CandidateSeqLen, core.NumObjectives}, scores.Shape)
	assert.Equal(t, 0.7, scores.At(0, 1, 0))
	assert.Equal(t, "closed", m.BreakerState())
}

func TestKServeModel_NotReady(t *testing.T) {
	srv := newKServeServer(t, false, nil)
	err := newTestKServe(srv.URL).Initialize(context.Background(), smallConfig())
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
}

func TestKServeModel_EmptyOutputs(t *testing.T) {
	cfg := smallConfig()
	srv := newKServeServer(t, true, nil)
	m := newTestKServe(srv.URL)
	require.NoError(t, m.Initialize(context.Background(), cfg))
	batch, emb := buildInputs(cfg, &core.RankingRequest{})
	_, err := m.Score(context.Background(), batch, emb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty outputs")
}

func TestKServeModel_PickOutputFallback(t *testing.T) {
	m := NewKServeModel("http://x", "phoenix", WithKServeOutputName("missing"))
	out := m.pickOutput([]v2OutputTensor{{Name: "a"}, {Name: "b"}})
	require.NotNil(t, out)
	assert.Equal(t, "a", out.Name)
}
