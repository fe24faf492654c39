package core

import "context"

// ScoringModel 是打分模型的领域接口（外部协作者，对本链路是黑盒）。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（model）实现
//   - 链路其余部分只依赖此接口，测试时可注入确定性的 stub
//   - 模型在启动时注入一次，请求期间只读调用；若实现本身非线程安全，串行化由实现负责
//
// 实现：
//   - model.RPCModel：远程模型服务
//   - model.KServeModel：KServe V2 推理服务
//   - model.TwoTowerModel：本地确定性模型
type ScoringModel interface {
	// Name 返回模型名称（用于日志/监控）
	Name() string

	// Score 对一个 batch 打分，返回 [1, candidate_slots, NumObjectives] 的原始概率矩阵。
	// 任何错误都原样向上传递，不做重试。
	Score(ctx context.Context, batch *FeatureBatch, emb *EmbeddingSet) (*ScoreMatrix, error)
}

// ModelInitializer 是可选接口：需要一次性初始化（加载权重、探活等）的模型实现它。
// Ranker 在进入 Ready 状态前调用 Initialize。
type ModelInitializer interface {
	Initialize(ctx context.Context, cfg ModelConfig) error
}

// HashConfig 是每个字段的哈希个数。
type HashConfig struct {
	NumUserHashes   int `yaml:"num_user_hashes" json:"num_user_hashes"`
	NumItemHashes   int `yaml:"num_item_hashes" json:"num_item_hashes"`
	NumAuthorHashes int `yaml:"num_author_hashes" json:"num_author_hashes"`
}

// ModelConfig 是启动时固定的静态模型配置。
type ModelConfig struct {
	EmbSize                 int        `yaml:"emb_size" json:"emb_size"`
	NumActions              int        `yaml:"num_actions" json:"num_actions"`
	HistorySeqLen           int        `yaml:"history_len" json:"history_seq_len"`
	CandidateSeqLen         int        `yaml:"candidate_len" json:"candidate_seq_len"`
	VocabSize               int        `yaml:"vocab_size" json:"vocab_size"`
	ProductSurfaceVocabSize int        `yaml:"product_surface_vocab_size" json:"product_surface_vocab_size"`
	Hash                    HashConfig `yaml:"hash" json:"hash_config"`
}

// 默认值
const (
	DefaultVocabSize               = 100_000
	DefaultHistoryLen              = 50
	DefaultCandidateLen            = 10
	DefaultEmbSize                 = 128
	DefaultNumHashes               = 2
	DefaultProductSurfaceVocabSize = 16
)

// DefaultModelConfig 返回默认模型配置。NumActions 取动作分类体系的大小。
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		EmbSize:                 DefaultEmbSize,
		NumActions:              NumObjectives,
		HistorySeqLen:           DefaultHistoryLen,
		CandidateSeqLen:         DefaultCandidateLen,
		VocabSize:               DefaultVocabSize,
		ProductSurfaceVocabSize: DefaultProductSurfaceVocabSize,
		Hash: HashConfig{
			NumUserHashes:   DefaultNumHashes,
			NumItemHashes:   DefaultNumHashes,
			NumAuthorHashes: DefaultNumHashes,
		},
	}
}
