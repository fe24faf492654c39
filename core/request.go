package core

import "github.com/rushteam/phoenix/pkg/utils"

// PostFeatures 是一条帖子的输入特征，由调用方提供，不可变。
type PostFeatures struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id"`
	// TextHash 是内容指纹
	TextHash   uint64 `json:"text_hash"`
	AuthorHash uint64 `json:"author_hash"`
	// ProductSurface 是曝光位置（UI 场景）编码，缺省 0
	ProductSurface int32 `json:"product_surface"`
	// VideoDurationSeconds 为 nil 表示非视频
	VideoDurationSeconds *float64 `json:"video_duration_seconds,omitempty"`
}

// RankingRequest 是一次排序请求。
//
// HistoryActions[i] 与 HistoryPosts[i] 仅按下标对齐，长度不一致时不做校验也不修正。
type RankingRequest struct {
	UserID string `json:"user_id"`
	// UserEmbedding 预留字段：接受但当前链路不消费
	UserEmbedding  []float64      `json:"user_embedding,omitempty"`
	HistoryPosts   []PostFeatures `json:"history_posts"`
	HistoryActions [][]float64    `json:"history_actions"`
	Candidates     []PostFeatures `json:"candidates"`
}

// CandidateScore 是单个候选的打分结果。
type CandidateScore struct {
	PostID        string        `json:"post_id"`
	PhoenixScores PhoenixScores `json:"phoenix_scores"`
	WeightedScore float64       `json:"weighted_score"`
	// Rank 从 1 开始，响应内唯一且连续
	Rank int `json:"rank"`

	// Labels 由标签规则写入，用于解释/观测
	Labels map[string]utils.Label `json:"labels,omitempty"`
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (c *CandidateScore) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// RankingResponse 的 Scores 与请求 Candidates 顺序一致（不是按名次排序）。
type RankingResponse struct {
	Scores []CandidateScore `json:"scores"`
}
