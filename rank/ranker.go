package rank

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feature"
	"github.com/rushteam/phoenix/pkg/log"
)

// Ranker 是未初始化状态：持有配置与模型，但不能排序。
// 调用 Initialize 完成模型的一次性初始化后得到 *Ready，排序只在 Ready 上可用。
//
// 使用示例：
//
//	ranker := rank.NewRanker(core.DefaultModelConfig(), model.NewTwoTowerModel())
//	ready, err := ranker.Initialize(ctx)
//	resp, err := ready.Rank(ctx, req)
type Ranker struct {
	cfg   core.ModelConfig
	model core.ScoringModel
}

// NewRanker 创建未初始化的 Ranker。
func NewRanker(cfg core.ModelConfig, m core.ScoringModel) *Ranker {
	return &Ranker{cfg: cfg, model: m}
}

// Config 返回静态模型配置。
func (r *Ranker) Config() core.ModelConfig {
	return r.cfg
}

// Initialize 完成模型初始化并返回 Ready 状态。
// 模型实现了 core.ModelInitializer 时调用其 Initialize。
func (r *Ranker) Initialize(ctx context.Context) (*Ready, error) {
	if r.model == nil {
		return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, "scoring model is required")
	}
	if init, ok := r.model.(core.ModelInitializer); ok {
		if err := init.Initialize(ctx, r.cfg); err != nil {
			return nil, fmt.Errorf("initialize model %s: %w", r.model.Name(), err)
		}
	}
	return &Ready{
		cfg:      r.cfg,
		batchCfg: feature.BatchConfigFrom(r.cfg),
		model:    r.model,
	}, nil
}

// Ready 是已初始化状态，可以并发处理请求（核心链路不持有跨请求状态）。
type Ready struct {
	cfg      core.ModelConfig
	batchCfg feature.BatchConfig
	model    core.ScoringModel
}

// Config 返回静态模型配置。
func (r *Ready) Config() core.ModelConfig {
	return r.cfg
}

// ModelName 返回模型名称。
func (r *Ready) ModelName() string {
	return r.model.Name()
}

// Rank 执行一次完整的排序：组 batch -> 合成 embedding -> 模型打分 -> 组合分数与名次。
// 模型错误原样（%w 包装）返回，不做重试。
func (r *Ready) Rank(ctx context.Context, req *core.RankingRequest) (*core.RankingResponse, error) {
	if req == nil {
		req = &core.RankingRequest{}
	}
	batch := feature.BuildBatch(req, r.batchCfg)
	embeddings := feature.BuildEmbeddings(batch, r.cfg.EmbSize, feature.NewEmbeddingTable())

	scores, err := r.model.Score(ctx, batch, embeddings)
	if err != nil {
		return nil, fmt.Errorf("phoenix model %s: %w", r.model.Name(), err)
	}
	if err := validateScores(scores); err != nil {
		return nil, err
	}
	if slots := core.SlotsOf(scores); len(req.Candidates) > slots {
		log.Warnf("phoenix rank: %d candidates exceed %d model slots, overflow candidates get zero scores",
			len(req.Candidates), slots)
	}

	return &core.RankingResponse{Scores: Combine(scores, req.Candidates)}, nil
}

// validateScores 检查模型输出是否满足 [1, slots, NumObjectives] 约定，且全部为有限值。
func validateScores(m *core.ScoreMatrix) error {
	if m == nil {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidOutput, "model returned no scores")
	}
	if len(m.Shape) != 3 || m.Shape[0] != 1 || m.Shape[2] != core.NumObjectives || !m.Valid() {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidOutput,
			fmt.Sprintf("model output shape %v (data=%d), want [1, slots, %d]", m.Shape, len(m.Data), core.NumObjectives))
	}
	for i, v := range m.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidOutput,
				fmt.Sprintf("model output non-finite value %v at slot %d objective %d", v, i/core.NumObjectives, i%core.NumObjectives))
		}
	}
	return nil
}

// Service 是面向服务层的排序入口：启动阶段为未初始化，Initialize 成功后原子切换到 Ready。
// 未就绪时 Rank 快速失败并返回 core.ErrNotInitialized，绝不会使用半初始化的模型。
type Service struct {
	ranker *Ranker
	ready  atomic.Pointer[Ready]
}

// NewService 创建 Service。
func NewService(ranker *Ranker) *Service {
	return &Service{ranker: ranker}
}

// Initialize 初始化底层模型，成功后 Service 进入就绪状态。重复调用是幂等的。
func (s *Service) Initialize(ctx context.Context) error {
	if s.ready.Load() != nil {
		return nil
	}
	log.Infof("Initializing Phoenix ranker...")
	ready, err := s.ranker.Initialize(ctx)
	if err != nil {
		return err
	}
	s.ready.CompareAndSwap(nil, ready)
	log.Infof("Phoenix ranker ready.")
	return nil
}

// Ready 返回就绪状态，未就绪时返回 nil。
func (s *Service) Ready() *Ready {
	return s.ready.Load()
}

// IsReady 是否已完成初始化。
func (s *Service) IsReady() bool {
	return s.ready.Load() != nil
}

// Config 返回静态模型配置。
func (s *Service) Config() core.ModelConfig {
	return s.ranker.Config()
}

// Rank 在就绪状态下排序；未就绪返回 core.ErrNotInitialized。
func (s *Service) Rank(ctx context.Context, req *core.RankingRequest) (*core.RankingResponse, error) {
	ready := s.ready.Load()
	if ready == nil {
		return nil, core.ErrNotInitialized
	}
	return ready.Rank(ctx, req)
}
