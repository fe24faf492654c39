package rerank

import (
	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/rank"
)

// ActionWeights 是每个互动目标的权重，可通过配置调整。
type ActionWeights struct {
	Like          float64 `yaml:"like" json:"like"`
	Reply         float64 `yaml:"reply" json:"reply"`
	Repost        float64 `yaml:"repost" json:"repost"`
	PhotoExpand   float64 `yaml:"photo_expand" json:"photo_expand"`
	Click         float64 `yaml:"click" json:"click"`
	ProfileClick  float64 `yaml:"profile_click" json:"profile_click"`
	VideoView     float64 `yaml:"video_view" json:"video_view"`
	Share         float64 `yaml:"share" json:"share"`
	ShareDM       float64 `yaml:"share_dm" json:"share_dm"`
	ShareLink     float64 `yaml:"share_link" json:"share_link"`
	Dwell         float64 `yaml:"dwell" json:"dwell"`
	Quote         float64 `yaml:"quote" json:"quote"`
	QuotedClick   float64 `yaml:"quoted_click" json:"quoted_click"`
	FollowAuthor  float64 `yaml:"follow_author" json:"follow_author"`
	NotInterested float64 `yaml:"not_interested" json:"not_interested"`
	Block         float64 `yaml:"block" json:"block"`
	Mute          float64 `yaml:"mute" json:"mute"`
	Report        float64 `yaml:"report" json:"report"`
	DwellTime     float64 `yaml:"dwell_time" json:"dwell_time"`
}

// DefaultActionWeights 与服务端加权分使用同一组权重。
func DefaultActionWeights() ActionWeights {
	return ActionWeights{
		Like:          rank.WeightLike,
		Reply:         rank.WeightReply,
		Repost:        rank.WeightRepost,
		PhotoExpand:   rank.WeightPhotoExpand,
		Click:         rank.WeightClick,
		ProfileClick:  rank.WeightProfileClick,
		VideoView:     rank.WeightVideoView,
		Share:         rank.WeightShare,
		ShareDM:       rank.WeightShareDM,
		ShareLink:     rank.WeightShareLink,
		Dwell:         rank.WeightDwell,
		Quote:         rank.WeightQuote,
		QuotedClick:   rank.WeightQuotedClick,
		FollowAuthor:  rank.WeightFollowAuthor,
		NotInterested: rank.WeightNotInterested,
		Block:         rank.WeightBlock,
		Mute:          rank.WeightMute,
		Report:        rank.WeightReport,
		DwellTime:     rank.WeightDwellTime,
	}
}

// WeightedScorer 计算加权分。
type WeightedScorer struct {
	Weights ActionWeights
	// VideoViewThreshold 是 video_view 计入的最短视频时长（秒）
	VideoViewThreshold float64
	// Offset 在加权和为负时加上
	Offset float64
}

// NewWeightedScorer 使用默认权重、阈值与偏移。
func NewWeightedScorer() *WeightedScorer {
	return &WeightedScorer{
		Weights:            DefaultActionWeights(),
		VideoViewThreshold: rank.VideoViewDurationThreshold,
		Offset:             rank.NegativeScoreOffset,
	}
}

// Score 计算单个候选的加权分：先正向目标，再视频观看，再负反馈，最后停留时长。
func (s *WeightedScorer) Score(p core.PhoenixScores, videoDuration *float64) float64 {
	w := s.Weights
	score := 0.0

	score += p.Like * w.Like
	score += p.Reply * w.Reply
	score += p.Repost * w.Repost
	score += p.PhotoExpand * w.PhotoExpand
	score += p.Click * w.Click
	score += p.ProfileClick * w.ProfileClick
	score += p.Share * w.Share
	score += p.ShareDM * w.ShareDM
	score += p.ShareLink * w.ShareLink
	score += p.Dwell * w.Dwell
	score += p.Quote * w.Quote
	score += p.QuotedClick * w.QuotedClick
	score += p.FollowAuthor * w.FollowAuthor

	if videoDuration != nil && *videoDuration >= s.VideoViewThreshold {
		score += p.VideoView * w.VideoView
	}

	score += p.NotInterested * w.NotInterested
	score += p.Block * w.Block
	score += p.Mute * w.Mute
	score += p.Report * w.Report

	score += p.DwellTime * w.DwellTime

	if score < 0 {
		score += s.Offset
	}
	return score
}
