package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	RedisURL string

	ImageConcurrency int
	VideoConcurrency int
	ImageJobTimeout  time.Duration
	VideoJobTimeout  time.Duration

	ImageCleanupInterval time.Duration
	VideoCleanupInterval time.Duration

	TempDir   string
	OutputDir string
	FontPath  string

	FFmpegPath  string
	FFprobePath string

	MetricsPort     int
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.ImageConcurrency = getEnvInt("IMAGE_CONCURRENCY", 4)
	cfg.VideoConcurrency = getEnvInt("VIDEO_CONCURRENCY", 1)

	cfg.ImageJobTimeout, err = getEnvDuration("IMAGE_JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_JOB_TIMEOUT: %w", err)
	}
	cfg.VideoJobTimeout, err = getEnvDuration("VIDEO_JOB_TIMEOUT", "60m")
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_JOB_TIMEOUT: %w", err)
	}

	cfg.ImageCleanupInterval, err = getEnvDuration("IMAGE_CLEANUP_INTERVAL", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_CLEANUP_INTERVAL: %w", err)
	}
	cfg.VideoCleanupInterval, err = getEnvDuration("VIDEO_CLEANUP_INTERVAL", "60s")
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_CLEANUP_INTERVAL: %w", err)
	}

	cfg.TempDir = getEnvString("TEMP_DIR", os.TempDir())
	cfg.OutputDir = getEnvString("OUTPUT_DIR", "./processed")
	cfg.FontPath = os.Getenv("WATERMARK_FONT_PATH")

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9091)
	cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ImageConcurrency < 1 {
		return fmt.Errorf("invalid image concurrency: %d", c.ImageConcurrency)
	}
	if c.VideoConcurrency < 1 {
		return fmt.Errorf("invalid video concurrency: %d", c.VideoConcurrency)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}
