package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	WorkerBaseURL    string        `envconfig:"WORKER_BASE_URL" default:"http://localhost:8000"`
	WorkerTimeout    time.Duration `envconfig:"WORKER_TIMEOUT" default:"30s"`
	WorkerRateLimit  float64       `envconfig:"WORKER_RATE_LIMIT" default:"20"`
	WorkerRateBurst  int           `envconfig:"WORKER_RATE_BURST" default:"5"`
	SubmitMaxElapsed time.Duration `envconfig:"SUBMIT_MAX_ELAPSED" default:"15s"`
	MaxUploadSize    int64         `envconfig:"MAX_UPLOAD_SIZE" default:"2147483648"`
	DefaultFormat    string        `envconfig:"DEFAULT_FORMAT" default:"best"`

	CollectionInterval     time.Duration `envconfig:"COLLECTION_POLL_INTERVAL" default:"3s"`
	DownloadInterval       time.Duration `envconfig:"DOWNLOAD_POLL_INTERVAL" default:"1s"`
	SceneDetectionInterval time.Duration `envconfig:"SCENE_POLL_INTERVAL" default:"3s"`
	DownloadAutoReset      time.Duration `envconfig:"DOWNLOAD_AUTO_RESET" default:"3s"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.WorkerBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid worker base URL: %q", c.WorkerBaseURL)
	}

	if c.WorkerRateLimit <= 0 {
		return fmt.Errorf("worker rate limit must be positive: %v", c.WorkerRateLimit)
	}
	if c.WorkerRateBurst <= 0 {
		return fmt.Errorf("worker rate burst must be positive: %d", c.WorkerRateBurst)
	}

	intervals := map[string]time.Duration{
		"collection":      c.CollectionInterval,
		"download":        c.DownloadInterval,
		"scene detection": c.SceneDetectionInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s poll interval must be positive: %s", name, d)
		}
	}

	if c.DownloadAutoReset < 0 {
		return fmt.Errorf("download auto reset cannot be negative: %s", c.DownloadAutoReset)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive: %d", c.MaxUploadSize)
	}

	return nil
}
