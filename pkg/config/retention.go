package config

import "time"

// RetentionConfig controls the worker's background data retention loop.
type RetentionConfig struct {
	// RawRetention is how long normalized staging rows are kept before
	// deletion. The canonical payload lives on the news event by then.
	// Non-positive disables the policy.
	RawRetention time.Duration

	// RunRetention is how long finished ingestion runs are kept.
	// Non-positive disables the policy.
	RunRetention time.Duration

	// Interval is how often the cleanup loop runs.
	Interval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		RawRetention: 30 * 24 * time.Hour,
		RunRetention: 90 * 24 * time.Hour,
		Interval:     12 * time.Hour,
	}
}

// LoadRetentionConfigFromEnv applies the RETENTION_* environment contract on
// top of the defaults. Day values of zero or below disable that policy.
func LoadRetentionConfigFromEnv() (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()

	rawDays, err := IntFromEnv("RETENTION_RAW_DAYS", 30)
	if err != nil {
		return nil, err
	}
	cfg.RawRetention = time.Duration(rawDays) * 24 * time.Hour

	runDays, err := IntFromEnv("RETENTION_RUNS_DAYS", 90)
	if err != nil {
		return nil, err
	}
	cfg.RunRetention = time.Duration(runDays) * 24 * time.Hour

	intervalHours, err := IntFromEnv("RETENTION_INTERVAL_HOURS", 12)
	if err != nil {
		return nil, err
	}
	if intervalHours <= 0 {
		intervalHours = 12
	}
	cfg.Interval = time.Duration(intervalHours) * time.Hour

	return cfg, nil
}
