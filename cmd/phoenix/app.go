package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/phoenix/config"
	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feedback"
	"github.com/rushteam/phoenix/history"
	"github.com/rushteam/phoenix/pkg/dsl"
	"github.com/rushteam/phoenix/pkg/log"
	"github.com/rushteam/phoenix/rank"
	"github.com/rushteam/phoenix/server"
	"github.com/rushteam/phoenix/store"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// app 持有服务运行期的全部组件。
type app struct {
	service *rank.Service
	handler http.Handler

	publisher feedback.Publisher
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{publisher: feedback.NopPublisher{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	model, err := config.BuildModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	a.service = rank.NewService(rank.NewRanker(cfg.Ranker, model))

	labels, err := dsl.CompileRules(cfg.Labels)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}

	var cache *server.ResponseCache
	if cfg.Cache.Enabled {
		s, err := a.openStore(ctx, cfg.Cache.Store)
		if err != nil {
			return nil, fmt.Errorf("cache store: %w", err)
		}
		cache = server.NewResponseCache(s, cfg.Cache.TTL, server.CachePrefix(model.Name(), cfg.Ranker))
	}

	enricher, err := a.newEnricher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	if cfg.Feedback.Enabled {
		pub, err := feedback.NewKafkaPublisher(cfg.Feedback.Kafka)
		if err != nil {
			return nil, fmt.Errorf("feedback: %w", err)
		}
		a.publisher = pub
	}

	a.handler = server.New(server.Options{
		Service:      a.service,
		Enricher:     enricher,
		Cache:        cache,
		Labels:       labels,
		Feedback:     a.publisher,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}).Handler()
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg store.Config) (core.Store, error) {
	s, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func (a *app) newEnricher(ctx context.Context, cfg *config.Config) (*history.Enricher, error) {
	var p history.Provider
	switch cfg.History.Provider {
	case "":
		return nil, nil
	case "store":
		s, err := a.openStore(ctx, cfg.History.Store)
		if err != nil {
			return nil, err
		}
		p = history.NewStoreProvider(s, cfg.History.KeyPrefix, 0)
	case "feast":
		fp, err := history.NewFeastProvider(cfg.History.Feast)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fp.Close)
		p = fp
	default:
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeNotSupported,
			fmt.Sprintf("unknown history provider %q", cfg.History.Provider))
	}
	log.Infof("history enrichment enabled (provider=%s)", p.Name())
	return history.NewEnricher(p, cfg.Ranker.HistorySeqLen, cfg.History.Timeout), nil
}

// initialize 在后台反复尝试初始化模型，直到成功或 ctx 结束。
func (a *app) initialize(ctx context.Context) {
	backoff := initialBackoff
	for {
		err := a.service.Initialize(ctx)
		if err == nil {
			return
		}
		log.Errorf("Phoenix ranker initialization failed, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Close 依次关闭发布器、存储与 Feast 连接。
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warnf("close feedback publisher: %v", err)
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warnf("close: %v", err)
		}
	}
}
