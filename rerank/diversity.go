package rerank

import "math"

// AuthorDiversityConfig 是作者多样性配置。
type AuthorDiversityConfig struct {
	Decay float64 `yaml:"decay" json:"decay"`
	Floor float64 `yaml:"floor" json:"floor"`
}

// DefaultAuthorDiversityConfig 返回 decay=0.7, floor=0.1。
func DefaultAuthorDiversityConfig() AuthorDiversityConfig {
	return AuthorDiversityConfig{Decay: 0.7, Floor: 0.1}
}

// AuthorDiversity 对同一作者的重复出现做指数衰减：
// 第 k 次重复（首次 k=0）的乘子为 (1-floor)*decay^k + floor。
// 输入需已按加权分降序排列，乘子作用于 WeightedScore 并覆盖 Score。
type AuthorDiversity struct {
	Config AuthorDiversityConfig
}

func (d *AuthorDiversity) Name() string {
	return "rerank.author_diversity"
}

// Multiplier 返回第 occurrence 次出现的乘子。
func (d *AuthorDiversity) Multiplier(occurrence int) float64 {
	return (1-d.Config.Floor)*math.Pow(d.Config.Decay, float64(occurrence)) + d.Config.Floor
}

func (d *AuthorDiversity) Apply(cands []*ScoredCandidate) {
	counts := make(map[string]int, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		n := counts[c.AuthorID]
		c.DiversityMultiplier = d.Multiplier(n)
		c.Score = c.WeightedScore * c.DiversityMultiplier
		counts[c.AuthorID] = n + 1
	}
}
