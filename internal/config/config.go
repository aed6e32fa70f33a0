package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Evaluation worker pool. Bounds concurrent units of work to cap load on
	// the shared time-series store.
	WorkerConcurrency int `mapstructure:"WORKER_CONCURRENCY"`
	QueueMaxAttempts  int `mapstructure:"QUEUE_MAX_ATTEMPTS"`

	// Journal sentiment analysis is gated on both flags being true.
	AIJournalAnalysis bool   `mapstructure:"AI_JOURNAL_ANALYSIS"`
	DPASigned         bool   `mapstructure:"DPA_SIGNED"`
	InferenceURL      string `mapstructure:"INFERENCE_URL"`
	InferenceAPIKey   string `mapstructure:"INFERENCE_API_KEY"`
	InferenceTimeout  int    `mapstructure:"INFERENCE_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8100")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("WORKER_CONCURRENCY", 5)
	v.SetDefault("QUEUE_MAX_ATTEMPTS", 5)
	v.SetDefault("AI_JOURNAL_ANALYSIS", false)
	v.SetDefault("DPA_SIGNED", false)
	v.SetDefault("INFERENCE_TIMEOUT", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("WORKER_CONCURRENCY")
	v.BindEnv("QUEUE_MAX_ATTEMPTS")
	v.BindEnv("AI_JOURNAL_ANALYSIS")
	v.BindEnv("DPA_SIGNED")
	v.BindEnv("INFERENCE_URL")
	v.BindEnv("INFERENCE_API_KEY")
	v.BindEnv("INFERENCE_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.QueueMaxAttempts < 1 {
		cfg.QueueMaxAttempts = 1
	}

	return cfg, nil
}

// IsDev reports whether the service is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// JournalAnalysisEnabled reports whether the journal sentiment rule may run.
// Both the feature flag and the data-processing agreement must be in place.
func (c *Config) JournalAnalysisEnabled() bool {
	return c.AIJournalAnalysis && c.DPASigned
}

// InferenceTimeoutDuration returns the inference call timeout.
func (c *Config) InferenceTimeoutDuration() time.Duration {
	if c.InferenceTimeout <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.InferenceTimeout) * time.Second
}
