package core

// NumObjectives 是模型多任务输出的列数。
const NumObjectives = 19

// ObjectiveNames 是模型输出列的顺序约定，不可重排。
var ObjectiveNames = [NumObjectives]string{
	"like",
	"reply",
	"repost",
	"photo_expand",
	"click",
	"profile_click",
	"video_view",
	"share",
	"share_dm",
	"share_link",
	"dwell",
	"quote",
	"quoted_click",
	"follow_author",
	"not_interested",
	"block",
	"mute",
	"report",
	"dwell_time",
}

// PhoenixScores 是单个候选的 19 个多任务概率估计。
type PhoenixScores struct {
	Like          float64 `json:"like"`
	Reply         float64 `json:"reply"`
	Repost        float64 `json:"repost"`
	PhotoExpand   float64 `json:"photo_expand"`
	Click         float64 `json:"click"`
	ProfileClick  float64 `json:"profile_click"`
	VideoView     float64 `json:"video_view"`
	Share         float64 `json:"share"`
	ShareDM       float64 `json:"share_dm"`
	ShareLink     float64 `json:"share_link"`
	Dwell         float64 `json:"dwell"`
	Quote         float64 `json:"quote"`
	QuotedClick   float64 `json:"quoted_click"`
	FollowAuthor  float64 `json:"follow_author"`
	NotInterested float64 `json:"not_interested"`
	Block         float64 `json:"block"`
	Mute          float64 `json:"mute"`
	Report        float64 `json:"report"`
	DwellTime     float64 `json:"dwell_time"`
}

// Values 按列顺序返回 19 个分数。
func (s PhoenixScores) Values() [NumObjectives]float64 {
	return [NumObjectives]float64{
		s.Like, s.Reply, s.Repost, s.PhotoExpand, s.Click, s.ProfileClick,
		s.VideoView, s.Share, s.ShareDM, s.ShareLink, s.Dwell, s.Quote,
		s.QuotedClick, s.FollowAuthor, s.NotInterested, s.Block, s.Mute,
		s.Report, s.DwellTime,
	}
}

// Map 返回 objective name -> score，供规则引擎使用。
func (s PhoenixScores) Map() map[string]float64 {
	values := s.Values()
	m := make(map[string]float64, NumObjectives)
	for i, name := range ObjectiveNames {
		m[name] = values[i]
	}
	return m
}
