package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/ratelimit"
)

// Config represents the orchestration service configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	OpenAI    openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// CacheConfig selects and sizes the response cache backend.
type CacheConfig struct {
	Backend    string `env:"CACHE_BACKEND"     envDefault:"memory"` // memory, lru or redis
	Enabled    bool   `env:"CACHE_ENABLED"     envDefault:"true"`
	TTLSeconds int    `env:"CACHE_TTL"         envDefault:"300"`
	MaxSize    int    `env:"CACHE_MAX_SIZE"    envDefault:"1000"`
	RedisAddr  string `env:"CACHE_REDIS_ADDR"  envDefault:"localhost:6379"`
	RedisDB    int    `env:"CACHE_REDIS_DB"    envDefault:"0"`
}

// Options converts the cache section into backend options.
func (c CacheConfig) Options() cache.Options {
	return cache.Options{
		TTL:     time.Duration(c.TTLSeconds) * time.Second,
		MaxSize: c.MaxSize,
		Enabled: c.Enabled,
	}
}

// RateLimitConfig contains per-provider admission control settings.
type RateLimitConfig struct {
	MaxRequests   int `env:"RATELIMIT_MAX_REQUESTS"   envDefault:"60"`
	IntervalMs    int `env:"RATELIMIT_INTERVAL_MS"    envDefault:"60000"`
	MinGapMs      int `env:"RATELIMIT_MIN_GAP_MS"     envDefault:"0"`
	MaxConcurrent int `env:"RATELIMIT_MAX_CONCURRENT" envDefault:"8"`
	QueueDepth    int `env:"RATELIMIT_QUEUE_DEPTH"    envDefault:"100"`
}

// LimiterConfig converts the rate-limit section into limiter settings.
func (c RateLimitConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Capacity:       c.MaxRequests,
		RefillInterval: time.Duration(c.IntervalMs) * time.Millisecond,
		MinGap:         time.Duration(c.MinGapMs) * time.Millisecond,
		MaxConcurrent:  c.MaxConcurrent,
		QueueDepth:     c.QueueDepth,
	}
}

// RetryConfig contains pipeline retry settings.
type RetryConfig struct {
	MaxRetries  int `env:"RETRY_MAX_RETRIES"   envDefault:"3"`
	BaseDelayMs int `env:"RETRY_BASE_DELAY_MS" envDefault:"200"`
	MaxDelayMs  int `env:"RETRY_MAX_DELAY_MS"  envDefault:"10000"`
}

// PipelineConfig converts the retry section into pipeline settings.
func (c RetryConfig) PipelineConfig() pipeline.RetryConfig {
	return pipeline.RetryConfig{
		MaxRetries: c.MaxRetries,
		BaseDelay:  time.Duration(c.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(c.MaxDelayMs) * time.Millisecond,
	}
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*CacheConfig
	*RateLimitConfig
	*RetryConfig
	*openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Cache,
		&cfg.RateLimit,
		&cfg.Retry,
		&cfg.OpenAI,
	}
}
