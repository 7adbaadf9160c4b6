package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	jqworker "github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediamill/mediamill/internal/cleanup"
	"github.com/mediamill/mediamill/internal/config"
	"github.com/mediamill/mediamill/internal/events"
	"github.com/mediamill/mediamill/internal/health"
	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/metrics"
	"github.com/mediamill/mediamill/internal/pipeline"
	imageengine "github.com/mediamill/mediamill/internal/pipeline/image"
	videoengine "github.com/mediamill/mediamill/internal/pipeline/video"
	"github.com/mediamill/mediamill/internal/queue"
	mmworker "github.com/mediamill/mediamill/internal/worker"
)

const (
	imageQueue = "images"
	videoQueue = "videos"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("configuration loaded", "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := broker.NewRedisStreamsBroker(redisClient,
		broker.WithWorkerID(fmt.Sprintf("mediamill-%d", os.Getpid())),
	)
	log.Info("broker initialized")

	metrics.SetAppInfo("1.0.0", cfg.Environment)
	metrics.SetWorkerPoolSize(string(media.TypeImage), cfg.ImageConcurrency)

	statusStore := queue.NewStatusStore(redisClient)
	bus := events.NewBus()
	defer bus.Close()

	imageStats := mmworker.NewStats()
	videoStats := mmworker.NewStats()

	imageCleaner := cleanup.NewScheduler(cfg.ImageCleanupInterval,
		cleanup.WithOnCleaned(func(path string, reason cleanup.Reason) {
			metrics.CleanupFilesTotal.WithLabelValues(string(reason)).Inc()
			imageStats.FileCleaned()
		}),
	)
	videoCleaner := cleanup.NewScheduler(cfg.VideoCleanupInterval,
		cleanup.WithOnCleaned(func(path string, reason cleanup.Reason) {
			metrics.CleanupFilesTotal.WithLabelValues(string(reason)).Inc()
			videoStats.FileCleaned()
		}),
	)

	imageExec := pipeline.NewImageExecutor(imageengine.NewEngine(cfg.FontPath), cfg.OutputDir)
	imgEngine := mmworker.NewEngine(media.TypeImage, imageExec, statusStore, imageCleaner, bus,
		mmworker.WithStats(imageStats))

	engines := map[media.Type]*mmworker.Engine{
		media.TypeImage: imgEngine,
	}

	log.Info("registering job handlers")
	imageRegistry := jqworker.NewRegistry()
	_ = imageRegistry.Register(imgEngine.JobType(), imgEngine.Handler())
	imageRegistry.Use(
		middleware.RecoveryMiddleware(zerologger),
		middleware.LoggingMiddleware(zerologger),
		middleware.TimeoutMiddleware(cfg.ImageJobTimeout),
		middleware.MetricsMiddleware(metrics.NewPrometheusCollector()),
	)

	imagePool := jqworker.NewPool(b, imageRegistry,
		jqworker.WithConcurrency(cfg.ImageConcurrency),
		jqworker.WithPoolQueues([]string{imageQueue}),
		jqworker.WithPoolPollInterval(time.Second),
		jqworker.WithShutdownTimeout(cfg.ShutdownTimeout),
		jqworker.WithPoolLogger(zerologger),
	)

	// Video support degrades gracefully when ffmpeg is missing: the image
	// pool still runs and video jobs stay queued for a capable worker.
	var videoPool *jqworker.Pool
	vEngine, err := videoengine.NewEngine(&videoengine.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
	})
	if err != nil {
		log.Warn("video pipeline unavailable", "error", err)
	} else {
		videoExec := pipeline.NewVideoExecutor(vEngine, cfg.OutputDir)
		vidEngine := mmworker.NewEngine(media.TypeVideo, videoExec, statusStore, videoCleaner, bus,
			mmworker.WithStats(videoStats))
		engines[media.TypeVideo] = vidEngine
		metrics.SetWorkerPoolSize(string(media.TypeVideo), cfg.VideoConcurrency)

		videoRegistry := jqworker.NewRegistry()
		_ = videoRegistry.Register(vidEngine.JobType(), vidEngine.Handler())
		videoRegistry.Use(
			middleware.RecoveryMiddleware(zerologger),
			middleware.LoggingMiddleware(zerologger),
			middleware.TimeoutMiddleware(cfg.VideoJobTimeout),
			middleware.MetricsMiddleware(metrics.NewPrometheusCollector()),
		)

		videoPool = jqworker.NewPool(b, videoRegistry,
			jqworker.WithConcurrency(cfg.VideoConcurrency),
			jqworker.WithPoolQueues([]string{videoQueue}),
			jqworker.WithPoolPollInterval(time.Second),
			jqworker.WithShutdownTimeout(cfg.ShutdownTimeout),
			jqworker.WithPoolLogger(zerologger),
		)
	}

	go imageCleaner.Run(ctx)
	go videoCleaner.Run(ctx)
	go publishEventLogs(ctx, bus)
	go recordCleanupBacklog(ctx, imageCleaner, videoCleaner)

	inspector := queue.NewInspector(redisClient, "workers", map[media.Type]string{
		media.TypeImage: "jobqueue:stream:" + imageQueue,
		media.TypeVideo: "jobqueue:stream:" + videoQueue,
	})
	go recordQueueDepth(ctx, inspector)

	monitor := health.NewMonitor(redisClient, inspector, engines, bus)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", monitor.Handler())
	metricsMux.HandleFunc("/health/live", health.LivenessHandler())

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	poolErr := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting image worker pool", "concurrency", cfg.ImageConcurrency)
		poolErr <- imagePool.Start(ctx)
	}()

	if videoPool != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("starting video worker pool", "concurrency", cfg.VideoConcurrency)
			poolErr <- videoPool.Start(ctx)
		}()
	}

	select {
	case err := <-poolErr:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := imagePool.Stop(shutdownCtx); err != nil {
			log.Error("error stopping image pool", "error", err)
		}
		if videoPool != nil {
			if err := videoPool.Stop(shutdownCtx); err != nil {
				log.Error("error stopping video pool", "error", err)
			}
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}

		cancel()
	}

	wg.Wait()
	log.Info("worker pools stopped gracefully")
	return nil
}

// publishEventLogs mirrors lifecycle events into the structured log.
func publishEventLogs(ctx context.Context, bus *events.Bus) {
	log := logger.Default()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			log.Debug("lifecycle event",
				"kind", string(event.Kind),
				"job_id", event.JobID,
				"media_type", string(event.MediaType),
				"attempt", event.Attempt,
				"error", event.Error,
			)
		}
	}
}

func recordCleanupBacklog(ctx context.Context, cleaners ...*cleanup.Scheduler) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending := 0
			for _, c := range cleaners {
				pending += c.PendingCount()
			}
			metrics.CleanupPendingFiles.Set(float64(pending))
		}
	}
}

// recordQueueDepth samples the broker's streams into the depth gauges.
func recordQueueDepth(ctx context.Context, inspector *queue.Inspector) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := inspector.All(ctx)
			if err != nil {
				logger.Default().Debug("queue depth sample failed", "error", err)
				continue
			}
			for mediaType, d := range depths {
				metrics.QueueDepth.WithLabelValues(string(mediaType), "waiting").Set(float64(d.Waiting))
				metrics.QueueDepth.WithLabelValues(string(mediaType), "active").Set(float64(d.Active))
			}
		}
	}
}
