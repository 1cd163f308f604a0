package config

import "time"

// ReviewConfig controls run admission and findings listing behavior.
type ReviewConfig struct {
	// MaxConcurrentRuns is the global cap on queued plus running review
	// runs across all replicas. Enforced by a database COUNT(*) check.
	MaxConcurrentRuns int

	// RateLimitPerMinute caps run submissions per requester fingerprint
	// over a sliding 60 second window.
	RateLimitPerMinute int

	// IdempotencyWindow is how long a run can be reused via its
	// idempotency key before a retry is rejected as expired.
	IdempotencyWindow time.Duration

	// PreferredJurisdiction is the governing-law jurisdiction that does
	// not trigger a mismatch finding.
	PreferredJurisdiction string

	FindingsDefaultPageSize int
	FindingsMaxPageSize     int
}

func loadReviewConfig() (ReviewConfig, error) {
	maxConcurrent, err := getEnvInt("REVIEW_MAX_CONCURRENT_RUNS", 4)
	if err != nil {
		return ReviewConfig{}, err
	}
	rateLimit, err := getEnvInt("REVIEW_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return ReviewConfig{}, err
	}
	window, err := getEnvSeconds("REVIEW_IDEMPOTENCY_WINDOW_SECONDS", 24*time.Hour)
	if err != nil {
		return ReviewConfig{}, err
	}
	defaultPageSize, err := getEnvInt("REVIEW_FINDINGS_DEFAULT_PAGE_SIZE", 20)
	if err != nil {
		return ReviewConfig{}, err
	}
	maxPageSize, err := getEnvInt("REVIEW_FINDINGS_MAX_PAGE_SIZE", 100)
	if err != nil {
		return ReviewConfig{}, err
	}
	return ReviewConfig{
		MaxConcurrentRuns:       maxConcurrent,
		RateLimitPerMinute:      rateLimit,
		IdempotencyWindow:       window,
		PreferredJurisdiction:   getEnvOrDefault("REVIEW_PREFERRED_JURISDICTION", "California"),
		FindingsDefaultPageSize: defaultPageSize,
		FindingsMaxPageSize:     maxPageSize,
	}, nil
}
