package feature

import "github.com/rushteam/phoenix/core"

// BatchConfig 是组装 FeatureBatch 所需的全部配置。
type BatchConfig struct {
	HistoryLen      int
	CandidateLen    int
	NumActions      int
	NumUserHashes   int
	NumItemHashes   int
	NumAuthorHashes int
	VocabSize       int
}

// BatchConfigFrom 从模型配置派生 BatchConfig。
func BatchConfigFrom(cfg core.ModelConfig) BatchConfig {
	return BatchConfig{
		HistoryLen:      cfg.HistorySeqLen,
		CandidateLen:    cfg.CandidateSeqLen,
		NumActions:      cfg.NumActions,
		NumUserHashes:   cfg.Hash.NumUserHashes,
		NumItemHashes:   cfg.Hash.NumItemHashes,
		NumAuthorHashes: cfg.Hash.NumAuthorHashes,
		VocabSize:       cfg.VocabSize,
	}
}

// BuildBatch 把变长请求组装成定长 FeatureBatch。
//
//   - 超长序列截取前 N 个，不足部分右侧补 0（哈希 id 0、动作 0.0、product_surface 0）
//   - HistoryActions 与 HistoryPosts 各自截断/填充，只按下标配对，不校验长度是否一致
//   - 每个时间步的动作向量截断/填充到 NumActions
//
// 永不失败：缺失或异常输入一律退化为 0 值，使单个坏候选不会拖垮整个请求。
func BuildBatch(req *core.RankingRequest, cfg BatchConfig) *core.FeatureBatch {
	cfg = cfg.sanitized()
	if req == nil {
		req = &core.RankingRequest{}
	}

	batch := &core.FeatureBatch{
		UserHashes: core.NewTensor[int32](1, cfg.NumUserHashes),

		HistoryPostHashes:     core.NewTensor[int32](1, cfg.HistoryLen, cfg.NumItemHashes),
		HistoryAuthorHashes:   core.NewTensor[int32](1, cfg.HistoryLen, cfg.NumAuthorHashes),
		HistoryActions:        core.NewTensor[float32](1, cfg.HistoryLen, cfg.NumActions),
		HistoryProductSurface: core.NewTensor[int32](1, cfg.HistoryLen),

		CandidatePostHashes:     core.NewTensor[int32](1, cfg.CandidateLen, cfg.NumItemHashes),
		CandidateAuthorHashes:   core.NewTensor[int32](1, cfg.CandidateLen, cfg.NumAuthorHashes),
		CandidateProductSurface: core.NewTensor[int32](1, cfg.CandidateLen),
	}

	copy(batch.UserHashes.Row(0), MultiHashes(req.UserID, cfg.NumUserHashes, cfg.VocabSize))

	fillPosts(req.HistoryPosts, cfg,
		batch.HistoryPostHashes, batch.HistoryAuthorHashes, batch.HistoryProductSurface)

	for idx, actions := range truncate(req.HistoryActions, cfg.HistoryLen) {
		row := batch.HistoryActions.Row(0, idx)
		for j, v := range padFloats(actions, cfg.NumActions) {
			row[j] = float32(v)
		}
	}

	fillPosts(req.Candidates, cfg,
		batch.CandidatePostHashes, batch.CandidateAuthorHashes, batch.CandidateProductSurface)

	return batch
}

// fillPosts 将帖子序列写入 post/author 哈希张量与 product_surface 向量。
func fillPosts(posts []core.PostFeatures, cfg BatchConfig, postHashes, authorHashes, surfaces core.Tensor[int32]) {
	n := surfaces.Shape[1]
	for idx, post := range truncate(posts, n) {
		copy(postHashes.Row(0, idx), MultiHashes(hashKey(post.TextHash), cfg.NumItemHashes, cfg.VocabSize))
		copy(authorHashes.Row(0, idx), MultiHashes(hashKey(post.AuthorHash), cfg.NumAuthorHashes, cfg.VocabSize))
		surfaces.Data[surfaces.Offset(0, idx)] = post.ProductSurface
	}
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// padFloats 截断或用 0.0 右填充到 length。
func padFloats(values []float64, length int) []float64 {
	out := make([]float64, length)
	copy(out, values)
	return out
}

// sanitized 把负数维度收敛为 0，保证张量构造不会因配置异常而 panic。
func (c BatchConfig) sanitized() BatchConfig {
	for _, p := range []*int{
		&c.HistoryLen, &c.CandidateLen, &c.NumActions,
		&c.NumUserHashes, &c.NumItemHashes, &c.NumAuthorHashes,
	} {
		if *p < 0 {
			*p = 0
		}
	}
	return c
}
