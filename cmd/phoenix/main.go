// Command phoenix 启动 Phoenix 排序 HTTP 服务。
//
//	phoenix -config phoenix.yaml
//
// 模型在后台初始化，完成前 /rank 返回 503、/readyz 返回 503。
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rushteam/phoenix/config"
	_ "github.com/rushteam/phoenix/config/builders"
	"github.com/rushteam/phoenix/pkg/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("PHOENIX_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Default = log.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer app.Close()

	go app.initialize(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Phoenix listening on %s (model=%s)", cfg.Server.Addr, cfg.Model.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
		}
	case <-ctx.Done():
		log.Infof("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
}
