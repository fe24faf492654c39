package core

// FeatureBatch 是一次请求组装出的定长特征张量。
// 形状只由配置决定（history_len / candidate_len / 各字段哈希数），与请求大小无关。
type FeatureBatch struct {
	UserHashes Tensor[int32] `json:"user_hashes"` // [1, U]

	HistoryPostHashes     Tensor[int32]   `json:"history_post_hashes"`     // [1, H, I]
	HistoryAuthorHashes   Tensor[int32]   `json:"history_author_hashes"`   // [1, H, A]
	HistoryActions        Tensor[float32] `json:"history_actions"`         // [1, H, num_actions]
	HistoryProductSurface Tensor[int32]   `json:"history_product_surface"` // [1, H]

	CandidatePostHashes     Tensor[int32] `json:"candidate_post_hashes"`     // [1, C, I]
	CandidateAuthorHashes   Tensor[int32] `json:"candidate_author_hashes"`   // [1, C, A]
	CandidateProductSurface Tensor[int32] `json:"candidate_product_surface"` // [1, C]
}

// HashedTensors 返回 5 个哈希张量，顺序与 EmbeddingSet 字段一一对应。
func (b *FeatureBatch) HashedTensors() []Tensor[int32] {
	return []Tensor[int32]{
		b.UserHashes,
		b.HistoryPostHashes,
		b.HistoryAuthorHashes,
		b.CandidatePostHashes,
		b.CandidateAuthorHashes,
	}
}

// EmbeddingSet 为 FeatureBatch 中每个哈希张量追加一个 emb_size 维度。
type EmbeddingSet struct {
	UserEmbeddings            Tensor[float32] `json:"user_embeddings"`             // [1, U, E]
	HistoryPostEmbeddings     Tensor[float32] `json:"history_post_embeddings"`     // [1, H, I, E]
	HistoryAuthorEmbeddings   Tensor[float32] `json:"history_author_embeddings"`   // [1, H, A, E]
	CandidatePostEmbeddings   Tensor[float32] `json:"candidate_post_embeddings"`   // [1, C, I, E]
	CandidateAuthorEmbeddings Tensor[float32] `json:"candidate_author_embeddings"` // [1, C, A, E]
}

// ScoreMatrix 是模型原始输出，形状 [1, candidate_slots, NumObjectives]。
type ScoreMatrix = Tensor[float64]

// SlotsOf 返回候选槽位数（形状异常时返回 0）。
func SlotsOf(m *ScoreMatrix) int {
	if m == nil || len(m.Shape) != 3 {
		return 0
	}
	return m.Shape[1]
}
