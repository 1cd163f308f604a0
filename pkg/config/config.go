// Package config loads service configuration from the environment. Every
// value has a working default so the service starts with no configuration
// at all, backed by the mock LLM provider and the in-process cache.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates per-concern configuration for the whole service.
type Config struct {
	Review     ReviewConfig
	Queue      QueueConfig
	LLM        LLMConfig
	Cache      CacheConfig
	Embeddings EmbeddingsConfig
	Retention  RetentionConfig
}

// Load reads all configuration sections from the environment.
func Load() (*Config, error) {
	review, err := loadReviewConfig()
	if err != nil {
		return nil, err
	}
	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}
	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}
	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}
	embeddings, err := loadEmbeddingsConfig()
	if err != nil {
		return nil, err
	}
	retention, err := loadRetentionConfig()
	if err != nil {
		return nil, err
	}
	return &Config{
		Review:     review,
		Queue:      queue,
		LLM:        llm,
		Cache:      cache,
		Embeddings: embeddings,
		Retention:  retention,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
