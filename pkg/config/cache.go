package config

import (
	"os"
	"time"
)

// CacheConfig controls the pipeline result cache.
type CacheConfig struct {
	// Enabled toggles cache lookups and population; when false every run
	// executes the full pipeline.
	Enabled bool

	// RedisAddr selects the Redis backend when set; empty means the
	// in-process memory store.
	RedisAddr string

	TTL time.Duration
}

func loadCacheConfig() (CacheConfig, error) {
	enabled, err := getEnvBool("REVIEW_ENABLE_PIPELINE_CACHE", true)
	if err != nil {
		return CacheConfig{}, err
	}
	ttl, err := getEnvSeconds("REVIEW_CACHE_TTL_SECONDS", 24*time.Hour)
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Enabled:   enabled,
		RedisAddr: os.Getenv("REDIS_ADDR"),
		TTL:       ttl,
	}, nil
}
