package rerank

import (
	"sort"
)

// Config 是流水线配置。
type Config struct {
	Weights         ActionWeights         `yaml:"weights" json:"weights"`
	AuthorDiversity AuthorDiversityConfig `yaml:"author_diversity" json:"author_diversity"`
	OONMultiplier   float64               `yaml:"oon_multiplier" json:"oon_multiplier"`
	// TopN > 0 时只保留前 N 个
	TopN int `yaml:"top_n" json:"top_n"`
}

// DefaultConfig 返回默认流水线配置。
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultActionWeights(),
		AuthorDiversity: DefaultAuthorDiversityConfig(),
		OONMultiplier:   DefaultOONMultiplier,
	}
}

// Pipeline 把加权、多样性、站外降权串起来。
//
// 示例：
//
//	p := rerank.NewPipeline(rerank.DefaultConfig())
//	feed := p.Score(rerank.FromResponse(req.Candidates, resp, following.Has))
type Pipeline struct {
	Weighted  *WeightedScorer
	Diversity *AuthorDiversity
	OON       *OONScorer
	TopN      int
}

// NewPipeline 按配置创建流水线。
func NewPipeline(cfg Config) *Pipeline {
	w := NewWeightedScorer()
	w.Weights = cfg.Weights
	return &Pipeline{
		Weighted:  w,
		Diversity: &AuthorDiversity{Config: cfg.AuthorDiversity},
		OON:       &OONScorer{Multiplier: cfg.OONMultiplier},
		TopN:      cfg.TopN,
	}
}

// Score 原地打分并返回按最终分降序排列的候选（可能被 TopN 截断）。
func (p *Pipeline) Score(cands []*ScoredCandidate) []*ScoredCandidate {
	out := make([]*ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		c.WeightedScore = p.Weighted.Score(c.PhoenixScores, c.VideoDurationSeconds)
		c.Score = c.WeightedScore
		c.DiversityMultiplier = 1
		c.OONMultiplier = 1
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeightedScore > out[j].WeightedScore
	})
	p.Diversity.Apply(out)
	p.OON.Apply(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if p.TopN > 0 && len(out) > p.TopN {
		out = out[:p.TopN]
	}
	return out
}
