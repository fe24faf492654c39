package rank

import (
	"math"
	"sort"

	"github.com/rushteam/phoenix/core"
)

const (
	// VideoViewDurationThreshold 视频时长达到该值（含）才计入 video_view 项
	VideoViewDurationThreshold = 6.0
	// NegativeScoreOffset 加权和严格小于 0 时追加的偏移
	NegativeScoreOffset = 1.0
)

// 固定的多目标权重。
const (
	WeightLike          = 1.0
	WeightReply         = 1.6
	WeightRepost        = 2.0
	WeightPhotoExpand   = 0.3
	WeightClick         = 0.4
	WeightProfileClick  = 0.3
	WeightVideoView     = 0.5
	WeightShare         = 1.4
	WeightShareDM       = 0.8
	WeightShareLink     = 0.6
	WeightDwell         = 0.2
	WeightQuote         = 1.7
	WeightQuotedClick   = 0.5
	WeightFollowAuthor  = 1.2
	WeightNotInterested = -2.5
	WeightBlock         = -5.0
	WeightMute          = -3.0
	WeightReport        = -6.0
	WeightDwellTime     = 0.1
)

// ProbsToScores 按列顺序把模型的一行输出映射为具名分数。
// 列顺序是与模型输出布局的约定（见 core.ObjectiveNames）。不足 19 列的部分为 0。
func ProbsToScores(probs []float64) core.PhoenixScores {
	var v [core.NumObjectives]float64
	copy(v[:], probs)
	return core.PhoenixScores{
		Like:          v[0],
		Reply:         v[1],
		Repost:        v[2],
		PhotoExpand:   v[3],
		Click:         v[4],
		ProfileClick:  v[5],
		VideoView:     v[6],
		Share:         v[7],
		ShareDM:       v[8],
		ShareLink:     v[9],
		Dwell:         v[10],
		Quote:         v[11],
		QuotedClick:   v[12],
		FollowAuthor:  v[13],
		NotInterested: v[14],
		Block:         v[15],
		Mute:          v[16],
		Report:        v[17],
		DwellTime:     v[18],
	}
}

// ComputeWeightedScore 计算业务加权分。
//
// video_view 项仅在 videoDuration 非空且 >= 6.0 秒时计入；
// 若未调整的和严格小于 0，则加上固定偏移 1.0。
// 累加顺序固定，浮点结果可逐位复现。
func ComputeWeightedScore(s core.PhoenixScores, videoDuration *float64) float64 {
	total := 0.0
	total += s.Like * WeightLike
	total += s.Reply * WeightReply
	total += s.Repost * WeightRepost
	total += s.PhotoExpand * WeightPhotoExpand
	total += s.Click * WeightClick
	total += s.ProfileClick * WeightProfileClick
	if videoDuration != nil && *videoDuration >= VideoViewDurationThreshold {
		total += s.VideoView * WeightVideoView
	}
	total += s.Share * WeightShare
	total += s.ShareDM * WeightShareDM
	total += s.ShareLink * WeightShareLink
	total += s.Dwell * WeightDwell
	total += s.Quote * WeightQuote
	total += s.QuotedClick * WeightQuotedClick
	total += s.FollowAuthor * WeightFollowAuthor
	total += s.NotInterested * WeightNotInterested
	total += s.Block * WeightBlock
	total += s.Mute * WeightMute
	total += s.Report * WeightReport
	total += s.DwellTime * WeightDwellTime

	if total < 0.0 {
		total += NegativeScoreOffset
	}
	return total
}

// RankByPrimary 按主分（模型原始输出第 0 列，即 like 概率）降序计算名次。
//
// 返回 index -> rank（从 1 开始、连续）；分数相同按原始下标升序（稳定）。
// NaN 视为最小值。注意排序依据不是加权分。
func RankByPrimary(primary []float64) map[int]int {
	order := make([]int, len(primary))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := primary[order[a]], primary[order[b]]
		if math.IsNaN(y) {
			return !math.IsNaN(x)
		}
		return x > y
	})
	ranks := make(map[int]int, len(order))
	for r, idx := range order {
		ranks[idx] = r + 1
	}
	return ranks
}

// Combine 把模型原始输出转换为按请求顺序排列的 CandidateScore 列表。
//
// 只有前 len(candidates) 行有效，尾部填充槽位忽略。
// 矩阵行数不足时，缺失候选得到全 0 分数，名次退化为 len(candidates)。
func Combine(scores *core.ScoreMatrix, candidates []core.PostFeatures) []core.CandidateScore {
	candidateCount := len(candidates)
	rows := min(core.SlotsOf(scores), candidateCount)

	primary := make([]float64, rows)
	for i := 0; i < rows; i++ {
		primary[i] = scores.At(0, i, 0)
	}
	rankMap := RankByPrimary(primary)

	out := make([]core.CandidateScore, 0, candidateCount)
	for idx, candidate := range candidates {
		var probs []float64
		if idx < rows {
			probs = scores.Row(0, idx)
		}
		phoenixScores := ProbsToScores(probs)
		rank, ok := rankMap[idx]
		if !ok {
			rank = candidateCount
		}
		out = append(out, core.CandidateScore{
			PostID:        candidate.PostID,
			PhoenixScores: phoenixScores,
			WeightedScore: ComputeWeightedScore(phoenixScores, candidate.VideoDurationSeconds),
			Rank:          rank,
		})
	}
	return out
}
