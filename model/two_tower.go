package model

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rushteam/phoenix/core"
)

// TwoTowerModel 是本地确定性的双塔打分模型，用于无远程模型服务时独立运行。
//
// 核心思想：
//   - User Tower：用户哈希 embedding 的均值 + 历史帖子/作者 embedding 的行为加权均值
//   - Item Tower：候选帖子/作者 embedding 的均值
//   - 每个目标 k：logit = Scale[k] * cos(user, item) + Bias[k]，再经 sigmoid 得到概率
//
// 没有可训练参数之外的状态，Score 可并发调用。
type TwoTowerModel struct {
	// Scale 是每个目标的余弦相似度缩放
	Scale [core.NumObjectives]float64

	// Bias 是每个目标的偏置
	Bias [core.NumObjectives]float64

	cfg atomic.Pointer[core.ModelConfig]
}

// NewTwoTowerModel 创建双塔模型，使用默认参数：正向目标偏置较低，负反馈目标偏置更低。
func NewTwoTowerModel() *TwoTowerModel {
	m := &TwoTowerModel{}
	for i := range m.Scale {
		m.Scale[i] = 4.0
		m.Bias[i] = -1.0
	}
	// not_interested / block / mute / report 与相关度负相关，且基础概率很低
	for _, i := range []int{14, 15, 16, 17} {
		m.Scale[i] = -2.0
		m.Bias[i] = -4.0
	}
	return m
}

func (m *TwoTowerModel) Name() string {
	return "two_tower"
}

// Initialize 校验配置。emb_size 必须为正。
func (m *TwoTowerModel) Initialize(_ context.Context, cfg core.ModelConfig) error {
	if cfg.EmbSize <= 0 {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput,
			fmt.Sprintf("two_tower: emb_size must be positive, got %d", cfg.EmbSize))
	}
	m.cfg.Store(&cfg)
	return nil
}

// Score 为每个候选槽位输出 NumObjectives 个概率。填充槽位的 item 向量为零，相似度为 0。
func (m *TwoTowerModel) Score(_ context.Context, batch *core.FeatureBatch, emb *core.EmbeddingSet) (*core.ScoreMatrix, error) {
	cfg := m.cfg.Load()
	if cfg == nil {
		return nil, core.ErrModelNotInitialized
	}
	if batch == nil || emb == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "two_tower: batch and embeddings are required")
	}
	embSize := cfg.EmbSize

	user := m.userVector(batch, emb, embSize)

	slots := 0
	if len(emb.CandidatePostEmbeddings.Shape) >= 2 {
		slots = emb.CandidatePostEmbeddings.Shape[1]
	}
	out := core.NewTensor[float64](1, slots, core.NumObjectives)
	for c := 0; c < slots; c++ {
		item := make([]float64, embSize)
		n := addRows(item, emb.CandidatePostEmbeddings.Row(0, c), embSize, 1)
		n += addRows(item, rowOf(emb.CandidateAuthorEmbeddings, c), embSize, 1)
		scale(item, n)

		sim := cosine(user, item)
		row := out.Row(0, c)
		for k := range row {
			row[k] = sigmoid(m.Scale[k]*sim + m.Bias[k])
		}
	}
	return &out, nil
}

// userVector 计算用户塔输出。
func (m *TwoTowerModel) userVector(batch *core.FeatureBatch, emb *core.EmbeddingSet, embSize int) []float64 {
	user := make([]float64, embSize)
	if len(emb.UserEmbeddings.Shape) == 3 {
		n := addRows(user, emb.UserEmbeddings.Row(0), embSize, 1)
		scale(user, n)
	}

	history := make([]float64, embSize)
	total := 0.0
	steps := 0
	if len(emb.HistoryPostEmbeddings.Shape) >= 2 {
		steps = emb.HistoryPostEmbeddings.Shape[1]
	}
	for h := 0; h < steps; h++ {
		w := actionWeight(batch, h)
		if w == 0 {
			continue
		}
		step := make([]float64, embSize)
		n := addRows(step, emb.HistoryPostEmbeddings.Row(0, h), embSize, 1)
		n += addRows(step, rowOf(emb.HistoryAuthorEmbeddings, h), embSize, 1)
		if n == 0 {
			continue
		}
		scale(step, n)
		for i := range history {
			history[i] += w * step[i]
		}
		total += w
	}
	if total > 0 {
		for i := range user {
			user[i] += history[i] / total
		}
	}
	return user
}

// actionWeight 是时间步 h 的行为强度（动作向量之和，负值按 0 处理）。
func actionWeight(batch *core.FeatureBatch, h int) float64 {
	if len(batch.HistoryActions.Shape) != 3 || h >= batch.HistoryActions.Shape[1] {
		return 0
	}
	w := 0.0
	for _, v := range batch.HistoryActions.Row(0, h) {
		w += float64(v)
	}
	return math.Max(w, 0)
}

func rowOf(t core.Tensor[float32], slot int) []float32 {
	if len(t.Shape) < 2 || slot >= t.Shape[1] {
		return nil
	}
	return t.Row(0, slot)
}

// addRows 把 flat（若干个 embSize 向量）中的非零向量累加到 dst，返回累加个数。
func addRows(dst []float64, flat []float32, embSize int, weight float64) int {
	if embSize <= 0 {
		return 0
	}
	n := 0
	for off := 0; off+embSize <= len(flat); off += embSize {
		vec := flat[off : off+embSize]
		if isZero(vec) {
			continue
		}
		for i, v := range vec {
			dst[i] += weight * float64(v)
		}
		n++
	}
	return n
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func scale(v []float64, n int) {
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= float64(n)
	}
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

var _ core.ScoringModel = (*TwoTowerModel)(nil)
var _ core.ModelInitializer = (*TwoTowerModel)(nil)
