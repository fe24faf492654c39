package rerank

// DefaultOONMultiplier 是站外候选的默认降权系数。
const DefaultOONMultiplier = 0.8

// OONScorer 对站外候选的最终分数乘以固定系数。
type OONScorer struct {
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

func (o *OONScorer) Name() string {
	return "rerank.oon"
}

func (o *OONScorer) Apply(cands []*ScoredCandidate) {
	for _, c := range cands {
		if c == nil {
			continue
		}
		if c.IsOON {
			c.OONMultiplier = o.Multiplier
			c.Score *= o.Multiplier
		} else {
			c.OONMultiplier = 1
		}
	}
}
