package config

import (
	"os"
	"time"
)

// LLMConfig selects and configures the review LLM provider.
type LLMConfig struct {
	// Provider is "openai" or "mock". With "openai" and no API key the
	// service falls back to the mock provider.
	Provider string

	APIKey  string
	Model   string
	BaseURL string

	// PromptRev versions the review prompt and participates in cache keys.
	PromptRev string

	// Timeout bounds a single provider call.
	Timeout time.Duration
}

func loadLLMConfig() (LLMConfig, error) {
	timeout, err := getEnvSeconds("LLM_TIMEOUT_SECONDS", 60*time.Second)
	if err != nil {
		return LLMConfig{}, err
	}
	return LLMConfig{
		Provider:  getEnvOrDefault("LLM_PROVIDER", "mock"),
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:     getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL:   os.Getenv("OPENAI_BASE_URL"),
		PromptRev: getEnvOrDefault("PROMPT_REV", "review_v1"),
		Timeout:   timeout,
	}, nil
}
