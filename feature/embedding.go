package feature

import (
	"math"
	"math/rand/v2"

	"github.com/rushteam/phoenix/core"
)

// EmbeddingStdDev 是合成 embedding 的正态分布标准差（均值 0）。
const EmbeddingStdDev = 0.2

// EmbeddingTable 是请求级的 embedding 记忆表：hash id -> 向量。
// 等价于一张固定、无限、按需物化的虚拟 embedding 表；每个请求新建一张，用完即弃。
// 不是并发安全的，不要跨请求共享。
type EmbeddingTable map[int32][]float32

// NewEmbeddingTable 创建空的记忆表。
func NewEmbeddingTable() EmbeddingTable {
	return make(EmbeddingTable)
}

// Embedding 返回 id 对应的确定性向量。
//
// id 0 返回全零向量；非零 id 以 id 本身作为种子，抽取 embSize 个 N(0, 0.2) 样本。
// 同一个 id 在任何进程、任何请求中得到的向量都相同，与请求历史无关。
func Embedding(id int32, embSize int) []float32 {
	out := make([]float32, embSize)
	if id == 0 {
		return out
	}
	fillNormal(out, uint64(int64(id)), EmbeddingStdDev)
	return out
}

// fillNormal 用以 seed 初始化的 PCG 生成器填充正态样本（Box-Muller，成对使用）。
// 生成器与变换都在本包内显式实现，保证种子 -> 输出的映射不随运行时版本漂移。
func fillNormal(dst []float32, seed uint64, stddev float64) {
	src := rand.NewPCG(seed, 0)
	for i := 0; i < len(dst); i += 2 {
		// u1 ∈ (0, 1]，避免 log(0)
		u1 := (float64(src.Uint64()>>11) + 1) / (1 << 53)
		u2 := float64(src.Uint64()>>11) / (1 << 53)
		r := math.Sqrt(-2 * math.Log(u1))
		theta := 2 * math.Pi * u2
		dst[i] = float32(r * math.Cos(theta) * stddev)
		if i+1 < len(dst) {
			dst[i+1] = float32(r * math.Sin(theta) * stddev)
		}
	}
}

// lookup 查表，未命中或维度不同时合成并写回。id 0 不写表。
func (t EmbeddingTable) lookup(id int32, embSize int) []float32 {
	if id == 0 {
		return nil
	}
	if emb, ok := t[id]; ok && len(emb) == embSize {
		return emb
	}
	emb := Embedding(id, embSize)
	t[id] = emb
	return emb
}

// HashesToEmbeddings 把哈希张量映射为追加 embSize 维度的 embedding 张量。
// table 为 nil 时使用一张临时表。
func HashesToEmbeddings(hashes core.Tensor[int32], embSize int, table EmbeddingTable) core.Tensor[float32] {
	if table == nil {
		table = NewEmbeddingTable()
	}
	if embSize < 0 {
		embSize = 0
	}
	shape := append(append([]int{}, hashes.Shape...), embSize)
	out := core.NewTensor[float32](shape...)
	for i, id := range hashes.Data {
		if emb := table.lookup(id, embSize); emb != nil {
			copy(out.Data[i*embSize:(i+1)*embSize], emb)
		}
	}
	return out
}

// BuildEmbeddings 为 batch 中全部 5 个哈希张量生成 EmbeddingSet。
// 5 个张量共享同一张 table：同一 id 出现在不同字段时得到同一个向量。
// table 为 nil 时新建；调用方可传入已有表并在返回后继续使用（更新后的缓存）。
func BuildEmbeddings(batch *core.FeatureBatch, embSize int, table EmbeddingTable) *core.EmbeddingSet {
	if table == nil {
		table = NewEmbeddingTable()
	}
	return &core.EmbeddingSet{
		UserEmbeddings:            HashesToEmbeddings(batch.UserHashes, embSize, table),
		HistoryPostEmbeddings:     HashesToEmbeddings(batch.HistoryPostHashes, embSize, table),
		HistoryAuthorEmbeddings:   HashesToEmbeddings(batch.HistoryAuthorHashes, embSize, table),
		CandidatePostEmbeddings:   HashesToEmbeddings(batch.CandidatePostHashes, embSize, table),
		CandidateAuthorEmbeddings: HashesToEmbeddings(batch.CandidateAuthorHashes, embSize, table),
	}
}
