package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vinyltube/internal/api"
	"vinyltube/internal/config"
	"vinyltube/internal/fileio"
	"vinyltube/internal/job"
	"vinyltube/internal/lifecycle"
	"vinyltube/internal/media"
	"vinyltube/internal/ratelimit"
)

func main() {

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	for _, dir := range []string{cfg.DownloadDir, cfg.TempDir} {
		if err := fileio.EnsureDir(dir); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("ensure dir")
		}
	}

	files := lifecycle.New(cfg.DownloadDir, cfg.Retention(), cfg.DiskQuotaBytes)
	if err := files.Scan(); err != nil {
		log.Fatal().Err(err).Msg("scan download dir")
	}

	limiter := ratelimit.New(cfg.RateLimitCount, cfg.RateLimitWindow())
	extractor := media.NewYTDLP()
	coordinator := job.New(extractor, media.NewFFmpeg(), files, job.Options{
		DownloadDir:       cfg.DownloadDir,
		TempDir:           cfg.TempDir,
		MaxFileSizeBytes:  cfg.MaxFileSizeBytes,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		QueueSize:         cfg.QueueSize,
		ExtractTimeout:    cfg.ExtractTimeout(),
		DownloadTimeout:   cfg.DownloadTimeout(),
	})

	baseCtx, baseCancel := context.WithCancel(context.Background())
	coordinator.Start(baseCtx)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		files.Run(baseCtx, cfg.CleanupInterval())
	}()

	router := setupRouter()
	api.NewAPI(coordinator, files, limiter, extractor, cfg.ExtractTimeout()).RegisterRoutes(router)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		log.Info().Int("port", cfg.Port).Str("download_dir", cfg.DownloadDir).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, coordinator, &background, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, coordinator *job.Coordinator, background *sync.WaitGroup, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !coordinator.WaitAll(ctx) {
		log.Warn().Msg("job workers did not finish before timeout")
	}

	done := make(chan struct{})
	go func() {
		background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("cleanup sweeper did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
