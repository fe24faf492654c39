package history

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/rushteam/phoenix/core"
)

// FeastConfig 是 Feast 在线特征的配置。
//
// 特征视图中每个用户一行，各字段是按时间倒序排列的等长列表：
//
//	{view}:post_ids          string list
//	{view}:author_ids        string list
//	{view}:text_hashes       int64 list（按 uint64 位模式解释）
//	{view}:author_hashes     int64 list（同上）
//	{view}:product_surfaces  int64 list
//	{view}:action_flags      int64 list，第 k 位表示第 k 个互动目标发生过
type FeastConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Project   string `yaml:"project"`
	View      string `yaml:"view"`
	EntityKey string `yaml:"entity_key"`
	// NumActions 是每个时间步动作向量的长度，通常等于 ranker.num_actions
	NumActions int `yaml:"num_actions"`
}

// 特征字段名
const (
	featurePostIDs         = "post_ids"
	featureAuthorIDs       = "author_ids"
	featureTextHashes      = "text_hashes"
	featureAuthorHashes    = "author_hashes"
	featureProductSurfaces = "product_surfaces"
	featureActionFlags     = "action_flags"
)

// OnlineFeaturesClient 是 Feast SDK 客户端中用到的部分，*feastsdk.GrpcClient 满足此接口。
type OnlineFeaturesClient interface {
	GetOnlineFeatures(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) (*feastsdk.OnlineFeaturesResponse, error)
}

// FeastProvider 从 Feast 在线特征读取历史。
type FeastProvider struct {
	client OnlineFeaturesClient
	cfg    FeastConfig
}

// NewFeastProvider 连接 Feast Serving（gRPC，默认端口 6565）。
func NewFeastProvider(cfg FeastConfig) (*FeastProvider, error) {
	if cfg.Port == 0 {
		cfg.Port = 6565
	}
	client, err := feastsdk.NewGrpcClient(cfg.Host, cfg.Port)
	if err != nil {
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeUnavailable,
			fmt.Sprintf("create feast grpc client %s:%d: %v", cfg.Host, cfg.Port, err))
	}
	return NewFeastProviderWithClient(client, cfg), nil
}

// NewFeastProviderWithClient 使用已有客户端创建。
func NewFeastProviderWithClient(client OnlineFeaturesClient, cfg FeastConfig) *FeastProvider {
	if cfg.EntityKey == "" {
		cfg.EntityKey = "user_id"
	}
	if cfg.View == "" {
		cfg.View = "user_engagement_history"
	}
	if cfg.NumActions <= 0 {
		cfg.NumActions = core.NumObjectives
	}
	return &FeastProvider{client: client, cfg: cfg}
}

func (p *FeastProvider) Name() string {
	return "feast"
}

// Close 关闭底层连接（客户端支持时）。
func (p *FeastProvider) Close() error {
	if c, ok := p.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (p *FeastProvider) feature(name string) string {
	return p.cfg.View + ":" + name
}

func (p *FeastProvider) Fetch(ctx context.Context, userID string, limit int) (*Record, error) {
	req := &feastsdk.OnlineFeaturesRequest{
		Features: []string{
			p.feature(featurePostIDs),
			p.feature(featureAuthorIDs),
			p.feature(featureTextHashes),
			p.feature(featureAuthorHashes),
			p.feature(featureProductSurfaces),
			p.feature(featureActionFlags),
		},
		Entities: []feastsdk.Row{{p.cfg.EntityKey: feastsdk.StrVal(userID)}},
		Project:  p.cfg.Project,
	}
	resp, err := p.client.GetOnlineFeatures(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}
	rows := resp.Rows()
	if len(rows) == 0 {
		return &Record{}, nil
	}
	return p.parseRow(rows[0], limit), nil
}

// parseRow 把一行特征还原为 Record。各列表长度不一致时按最短的帖子哈希列表截断。
func (p *FeastProvider) parseRow(row feastsdk.Row, limit int) *Record {
	textHashes := int64List(row[p.feature(featureTextHashes)])
	authorHashes := int64List(row[p.feature(featureAuthorHashes)])
	postIDs := stringList(row[p.feature(featurePostIDs)])
	authorIDs := stringList(row[p.feature(featureAuthorIDs)])
	surfaces := int64List(row[p.feature(featureProductSurfaces)])
	flags := int64List(row[p.feature(featureActionFlags)])

	n := min(len(textHashes), len(authorHashes))
	if limit > 0 && n > limit {
		n = limit
	}
	rec := &Record{
		Posts:   make([]core.PostFeatures, n),
		Actions: make([][]float64, 0, n),
	}
	for i := 0; i < n; i++ {
		rec.Posts[i] = core.PostFeatures{
			PostID:         at(postIDs, i),
			AuthorID:       at(authorIDs, i),
			TextHash:       uint64(textHashes[i]),
			AuthorHash:     uint64(authorHashes[i]),
			ProductSurface: int32(at(surfaces, i)),
		}
		if i < len(flags) {
			rec.Actions = append(rec.Actions, decodeActionFlags(flags[i], p.cfg.NumActions))
		}
	}
	return rec
}

// decodeActionFlags 把位图展开成 0/1 动作向量。
func decodeActionFlags(flags int64, numActions int) []float64 {
	out := make([]float64, numActions)
	for k := 0; k < numActions && k < 64; k++ {
		if flags&(1<<k) != 0 {
			out[k] = 1
		}
	}
	return out
}

// EncodeActionFlags 是 decodeActionFlags 的逆过程：大于 0 的动作置位。
func EncodeActionFlags(actions []float64) int64 {
	var flags int64
	for k, v := range actions {
		if k >= 64 {
			break
		}
		if v > 0 {
			flags |= 1 << k
		}
	}
	return flags
}

func int64List(v *types.Value) []int64 {
	if v == nil {
		return nil
	}
	if l := v.GetInt64ListVal(); l != nil {
		return l.GetVal()
	}
	return nil
}

func stringList(v *types.Value) []string {
	if v == nil {
		return nil
	}
	if l := v.GetStringListVal(); l != nil {
		return l.GetVal()
	}
	return nil
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

var _ Provider = (*FeastProvider)(nil)
