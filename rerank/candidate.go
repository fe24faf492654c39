// Package rerank 是调用方侧的打分流水线：把 Phoenix 返回的多目标概率
// 组合成最终分数，再做作者多样性打散和站外（out-of-network）降权。
//
// 流水线顺序：
//
//	加权分 -> 按加权分排序 -> 作者多样性 -> 站外降权 -> 按最终分排序
//
// 所有排序都是稳定排序，分数相同的候选保持原有相对顺序。
package rerank

import (
	"github.com/rushteam/phoenix/core"
)

// ScoredCandidate 是流水线中的一个候选。
type ScoredCandidate struct {
	PostID               string
	AuthorID             string
	IsOON                bool // 是否站外（非关注作者）
	VideoDurationSeconds *float64
	PhoenixScores        core.PhoenixScores

	WeightedScore       float64
	DiversityMultiplier float64
	OONMultiplier       float64
	// Score 是最终分数
	Score float64
}

// NewScoredCandidate 创建候选，乘子初始化为 1。
func NewScoredCandidate(post core.PostFeatures, scores core.PhoenixScores, isOON bool) *ScoredCandidate {
	return &ScoredCandidate{
		PostID:               post.PostID,
		AuthorID:             post.AuthorID,
		IsOON:                isOON,
		VideoDurationSeconds: post.VideoDurationSeconds,
		PhoenixScores:        scores,
		DiversityMultiplier:  1,
		OONMultiplier:        1,
	}
}

// FromResponse 把排序响应与请求候选按下标配对。inNetwork 为 nil 时全部视为站内。
// 响应中缺失的候选（下标越界）被跳过。
func FromResponse(candidates []core.PostFeatures, resp *core.RankingResponse, inNetwork func(authorID string) bool) []*ScoredCandidate {
	if resp == nil {
		return nil
	}
	out := make([]*ScoredCandidate, 0, len(resp.Scores))
	for i, s := range resp.Scores {
		if i >= len(candidates) {
			break
		}
		post := candidates[i]
		isOON := inNetwork != nil && !inNetwork(post.AuthorID)
		out = append(out, NewScoredCandidate(post, s.PhoenixScores, isOON))
	}
	return out
}
