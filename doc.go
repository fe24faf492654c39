// Package phoenix 是 Phoenix 排序服务：把用户历史与候选帖子组装成定长特征张量，
// 交给打分模型得到 19 个互动目标的概率，再组合成加权分并给出名次。
//
// 设计要点：
// - 确定性：哈希与 embedding 只由输入和配置决定，同一请求永远得到同一 batch
// - 模型可插拔：core.ScoringModel 可以是本地双塔、HTTP 远程模型或 KServe 推理服务
// - 两阶段生命周期：模型初始化完成前排序快速失败（core.ErrNotInitialized）
//
// 服务入口见 cmd/phoenix，调用方客户端见 client。
package phoenix

import (
	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/rank"
)

// 轻量 facade：便于直接 import "phoenix" 使用核心类型。
type (
	PostFeatures    = core.PostFeatures
	RankingRequest  = core.RankingRequest
	RankingResponse = core.RankingResponse
	CandidateScore  = core.CandidateScore
	PhoenixScores   = core.PhoenixScores
	ModelConfig     = core.ModelConfig
	ScoringModel    = core.ScoringModel
)

// NewService 用模型与配置创建尚未初始化的排序服务。
func NewService(cfg ModelConfig, m ScoringModel) *rank.Service {
	return rank.NewService(rank.NewRanker(cfg, m))
}
