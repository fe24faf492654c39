// Package server 暴露 Phoenix 排序服务的 HTTP 接口。
//
// 路由：
//
//	POST /rank     排序
//	GET  /healthz  存活检查
//	GET  /readyz   就绪检查（模型初始化完成前返回 503）
//	GET  /metrics  Prometheus 指标
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/feedback"
	"github.com/rushteam/phoenix/history"
	"github.com/rushteam/phoenix/pkg/dsl"
	"github.com/rushteam/phoenix/pkg/log"
	"github.com/rushteam/phoenix/rank"
)

// Options 是 Server 的依赖。除 Service 外都可以为空。
type Options struct {
	Service  *rank.Service
	Enricher *history.Enricher
	Cache    *ResponseCache
	Labels   *dsl.RuleSet
	Feedback feedback.Publisher

	// RateLimit 是每秒允许的 /rank 请求数，<= 0 表示不限流
	RateLimit float64
	RateBurst int
	// MaxBodyBytes 是请求体上限，<= 0 表示不限制
	MaxBodyBytes int64
}

// Server 处理 HTTP 请求。
type Server struct {
	opts    Options
	limiter *rate.Limiter
}

// New 创建 Server。
func New(opts Options) *Server {
	if opts.Feedback == nil {
		opts.Feedback = feedback.NopPublisher{}
	}
	s := &Server{opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler 返回配置好中间件与路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.With(s.rateLimit).Post("/rank", s.handleRank)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.opts.Service.Ready()
	if ready == nil {
		rankerReady.Set(0)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	rankerReady.Set(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "model": ready.ModelName()})
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}
	var req core.RankingRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		rankErrors.WithLabelValues("decode").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rankCandidates.Observe(float64(len(req.Candidates)))

	ctx := r.Context()
	enriched := s.opts.Enricher.Enrich(ctx, &req)

	var (
		resp *core.RankingResponse
		err  error
	)
	if s.opts.Cache != nil && s.opts.Service.IsReady() {
		resp, _, err = s.opts.Cache.Do(ctx, enriched, func(ctx context.Context) (*core.RankingResponse, error) {
			return s.opts.Service.Rank(ctx, enriched)
		})
	} else {
		resp, err = s.opts.Service.Rank(ctx, enriched)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotInitialized) {
			rankErrors.WithLabelValues("not_initialized").Inc()
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		rankErrors.WithLabelValues("model").Inc()
		log.Errorf("Phoenix rank failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.opts.Labels.Apply(enriched.UserID, resp)
	if err := s.opts.Feedback.RecordRanking(ctx, enriched, resp); err != nil {
		log.Warnf("feedback: record ranking: %v", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// rateLimit 是全局令牌桶限流，超限返回 429。
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			rateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware 记录请求数与耗时，route 使用 chi 路由模板避免高基数。
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeJSON 先编码到缓冲区再写状态码，编码失败时返回 500 而不是截断的 200。
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Errorf("encode response: %v", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorBody{Detail: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warnf("write response: %v", err)
	}
}
