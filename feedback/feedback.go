// Package feedback 把排序曝光事件异步发布到事件日志（Kafka），供离线训练与分析使用。
package feedback

import (
	"context"
	"time"

	"github.com/rushteam/phoenix/core"
)

// EventType 是事件类型
type EventType string

const (
	EventTypeImpression EventType = "impression" // 排序曝光
)

// Event 是一条排序结果事件（轻量级，只包含必要信息）
type Event struct {
	UserID        string             `json:"user_id"`
	PostID        string             `json:"post_id"`
	AuthorID      string             `json:"author_id"`
	Type          EventType          `json:"type"`
	Timestamp     int64              `json:"timestamp"` // Unix 时间戳（毫秒）
	Rank          int                `json:"rank"`
	WeightedScore float64            `json:"weighted_score"`
	Scores        map[string]float64 `json:"scores"`
	Labels        map[string]string  `json:"labels,omitempty"`
}

// Publisher 发布排序事件（异步非阻塞）
type Publisher interface {
	// RecordRanking 记录一次排序的全部候选
	RecordRanking(ctx context.Context, req *core.RankingRequest, resp *core.RankingResponse) error

	// Close 优雅关闭（等待缓冲数据发送完成）
	Close() error
}

// BuildEvents 把一次排序转换为事件列表，顺序与候选一致。
func BuildEvents(req *core.RankingRequest, resp *core.RankingResponse, now time.Time) []*Event {
	if req == nil || resp == nil {
		return nil
	}
	ts := now.UnixMilli()
	events := make([]*Event, 0, len(resp.Scores))
	for i, s := range resp.Scores {
		ev := &Event{
			UserID:        req.UserID,
			PostID:        s.PostID,
			Type:          EventTypeImpression,
			Timestamp:     ts,
			Rank:          s.Rank,
			WeightedScore: s.WeightedScore,
			Scores:        s.PhoenixScores.Map(),
		}
		if i < len(req.Candidates) {
			ev.AuthorID = req.Candidates[i].AuthorID
		}
		if len(s.Labels) > 0 {
			ev.Labels = make(map[string]string, len(s.Labels))
			for k, lbl := range s.Labels {
				ev.Labels[k] = lbl.Value
			}
		}
		events = append(events, ev)
	}
	return events
}

// NopPublisher 丢弃所有事件（未启用 feedback 时使用）
type NopPublisher struct{}

func (NopPublisher) RecordRanking(context.Context, *core.RankingRequest, *core.RankingResponse) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

var _ Publisher = NopPublisher{}
