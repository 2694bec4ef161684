package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/api"
	"github.com/qs3c/place_rank_server/internal/api/handler"
	"github.com/qs3c/place_rank_server/internal/database"
	"github.com/qs3c/place_rank_server/internal/pkg/browser"
	"github.com/qs3c/place_rank_server/internal/pkg/cron"
	"github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/pkg/oss"
	"github.com/qs3c/place_rank_server/internal/pkg/pubsub"
	"github.com/qs3c/place_rank_server/internal/pkg/ws"
	"github.com/qs3c/place_rank_server/internal/ranking"
	"github.com/qs3c/place_rank_server/internal/repository"
	"github.com/qs3c/place_rank_server/internal/scraper"
	"github.com/qs3c/place_rank_server/internal/service"
	"github.com/qs3c/place_rank_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化浏览器引擎，首次打开页面时才真正启动
	engine := browser.NewPlaywrightEngine(cfg.Browser, zl.Named("browser"))
	navTimeout := browser.Millis(cfg.Browser.NavigationTimeoutMs, 90*time.Second)
	extractor := scraper.NewListingExtractor(engine, cfg.Extraction, navTimeout, zl.Named("scraper"))
	ranker := ranking.NewRanker(engine, cfg.Ranking, zl.Named("ranking"))

	store := repository.NewMemoryJobStore()
	hub := ws.NewHub(zl.Named("ws"))

	// 进度推送：配置了 Redis 时经 Redis 广播，否则直接推给本进程的连接
	var notifier pubsub.Notifier = hub
	if database.RedisEnabled(&cfg.Redis) {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			zl.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		zl.Info("redis connected")

		notifier = pubsub.NewPublisher(rdb)
		subscriber := pubsub.NewSubscriber(rdb)
		go func() {
			if err := subscriber.Subscribe(ctx, hub.Forward); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("progress subscriber stopped", zap.Error(err))
			}
		}()
	}

	// 初始化 OSS（可选）
	var archiver worker.ReportArchiver
	var reports cron.ReportRemover
	if oss.Enabled(&cfg.OSS) {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			zl.Warn("failed to init OSS client, reports will not be archived", zap.Error(err))
		} else {
			archiver = ossClient
			reports = ossClient
			zl.Info("OSS client initialized")
		}
	}

	processor := worker.NewProcessor(store, extractor, ranker, notifier, archiver, cfg, zl.Named("worker"))
	pool := worker.NewPool(processor, cfg.Jobs, zl.Named("pool"))
	pool.Start(ctx)

	reaper := cron.NewService(
		store,
		reports,
		time.Duration(cfg.Jobs.RetentionMinutes)*time.Minute,
		time.Duration(cfg.Jobs.SweepIntervalMinutes)*time.Minute,
		zl.Named("cron"),
	)
	reaper.Start()

	jobService := service.NewJobService(store, pool, extractor, ranker, cfg, zl.Named("service"))

	router := api.NewRouter(
		handler.NewJobHandler(jobService),
		handler.NewPlaceHandler(jobService, zl.Named("handler")),
		handler.NewHealthHandler(pool, store, hub),
		handler.NewWebSocketHandler(hub, jobService, zl.Named("handler")),
		cfg,
		zl.Named("http"),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Setup(),
	}

	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zl.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http server shutdown", zap.Error(err))
	}

	reaper.Stop()
	cancel()
	pool.Stop()

	if err := engine.Close(); err != nil {
		zl.Warn("failed to close browser", zap.Error(err))
	}
	store.Clear()
	zl.Info("server stopped")
}
