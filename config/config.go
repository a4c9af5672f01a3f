// Package config holds the warmcache runtime configuration. Values come from
// WARMCACHE_* environment variables with defaults in the envDefault tags;
// callers may layer overrides (config file, flags) on top.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable name.
const EnvPrefix = "WARMCACHE_"

// Local storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	// Listen is the debug HTTP address used by `warmcache serve`.
	Listen string `env:"LISTEN" envDefault:"127.0.0.1:8089"`
	// Origin decides which hovered links are same-origin.
	Origin string `env:"ORIGIN"`
	// APIBaseURL resolves relative endpoint prefetches.
	APIBaseURL string `env:"API_BASE_URL"`

	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Prefetch PrefetchConfig `envPrefix:"PREFETCH_"`
	Behavior BehaviorConfig `envPrefix:"BEHAVIOR_"`
}

type CacheConfig struct {
	Shards            int           `env:"SHARDS" envDefault:"0"`
	APIDefaultTTL     time.Duration `env:"API_DEFAULT_TTL" envDefault:"5m"`
	APIRetention      time.Duration `env:"API_RETENTION" envDefault:"30m"`
	RevalidateTimeout time.Duration `env:"REVALIDATE_TIMEOUT" envDefault:"10s"`
	BlobTTL           time.Duration `env:"BLOB_TTL" envDefault:"168h"`
	StateRetention    time.Duration `env:"STATE_RETENTION" envDefault:"10m"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

type StorageConfig struct {
	// ImageDB is the sqlite file of the durable blob tier (":memory:" allowed).
	ImageDB       string `env:"IMAGE_DB" envDefault:"ImageCache.db"`
	LocalBackend  string `env:"LOCAL_BACKEND" envDefault:"sqlite"`
	LocalDB       string `env:"LOCAL_DB" envDefault:"warmcache-local.db"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"warmcache:local:"`
}

type PrefetchConfig struct {
	MaxConcurrent int           `env:"MAX_CONCURRENT" envDefault:"3"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"5s"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	EndpointTTL   time.Duration `env:"ENDPOINT_TTL" envDefault:"5m"`
	MaxImagesFast int           `env:"MAX_IMAGES_FAST" envDefault:"10"`
	MaxImagesSlow int           `env:"MAX_IMAGES_SLOW" envDefault:"3"`
	// EffectiveType and SaveData seed the reported connection.
	EffectiveType string `env:"EFFECTIVE_TYPE" envDefault:"4g"`
	SaveData      bool   `env:"SAVE_DATA" envDefault:"false"`
}

type BehaviorConfig struct {
	HoverDelay        time.Duration `env:"HOVER_DELAY" envDefault:"100ms"`
	ScrollDebounce    time.Duration `env:"SCROLL_DEBOUNCE" envDefault:"100ms"`
	NextPageThreshold float64       `env:"NEXT_PAGE_THRESHOLD" envDefault:"70"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"5s"`
}

// Load parses the process environment. overrides maps full variable names
// (WARMCACHE_PREFETCH_TIMEOUT) to values and wins over the environment.
func Load(overrides map[string]string) (Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	for k, v := range overrides {
		environ[k] = v
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	})
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch c.Storage.LocalBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("config: unknown local backend %q", c.Storage.LocalBackend)
	}
	if c.Prefetch.MaxConcurrent < 1 {
		return fmt.Errorf("config: prefetch max concurrent must be >= 1, got %d", c.Prefetch.MaxConcurrent)
	}
	if c.Behavior.NextPageThreshold <= 0 || c.Behavior.NextPageThreshold > 100 {
		return fmt.Errorf("config: next page threshold must be in (0, 100], got %v", c.Behavior.NextPageThreshold)
	}
	if c.Storage.ImageDB == "" {
		return fmt.Errorf("config: image db path is empty")
	}
	return nil
}

// EnvKey converts a dotted key ("prefetch.max_concurrent") to its variable
// name ("WARMCACHE_PREFETCH_MAX_CONCURRENT").
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}
