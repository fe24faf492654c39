package feature

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
)

// StableHash 计算 "{seed}:{value}" 的 SHA-256，取前 8 字节按大端解释为 uint64。
// 纯函数，跨进程、跨版本结果一致。
func StableHash(value string, seed int) uint64 {
	payload := make([]byte, 0, len(value)+8)
	payload = strconv.AppendInt(payload, int64(seed), 10)
	payload = append(payload, ':')
	payload = append(payload, value...)
	digest := sha256.Sum256(payload)
	return binary.BigEndian.Uint64(digest[:8])
}

// MultiHashes 为同一个值生成 numHashes 个相互独立的哈希 id（seed 依次为 1..numHashes），
// 并归一化到 [1, vocabSize-1]。0 保留给缺失/填充位，永远不会出现在结果中。
func MultiHashes(value string, numHashes, vocabSize int) []int32 {
	if numHashes <= 0 {
		return []int32{}
	}
	mod := uint64(vocabSize - 1)
	if vocabSize < 2 {
		mod = 1
	}
	out := make([]int32, numHashes)
	for idx := range out {
		h := StableHash(value, idx+1)
		out[idx] = int32(h%mod + 1)
	}
	return out
}

// hashKey 把数值型指纹转为哈希输入（十进制字符串）。
func hashKey(v uint64) string {
	return strconv.FormatUint(v, 10)
}
