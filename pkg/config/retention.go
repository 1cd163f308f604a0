package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// RunRetentionDays is how many days to keep terminal runs and their
	// chunks and findings before deletion. Zero disables cleanup.
	RunRetentionDays int

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

func loadRetentionConfig() (RetentionConfig, error) {
	days, err := getEnvInt("REVIEW_RETENTION_DAYS", 0)
	if err != nil {
		return RetentionConfig{}, err
	}
	return RetentionConfig{
		RunRetentionDays: days,
		CleanupInterval:  12 * time.Hour,
	}, nil
}
