package config

// IntakeConfig bounds how many fetched items a single ingestion run keeps
// per ticker before raw persistence.
type IntakeConfig struct {
	// LatestPerRun caps how many items survive one run per ticker, taken
	// newest-first after the daily cap is applied.
	LatestPerRun int

	// DailyMax caps how many items are kept per ticker per calendar day of
	// the upstream's locality.
	DailyMax int
}

// DefaultIntakeConfig returns the built-in intake limits.
func DefaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		LatestPerRun: 10,
		DailyMax:     100,
	}
}

// LoadIntakeConfigFromEnv applies INTAKE_LATEST_PER_RUN_PER_TICKER and
// INTAKE_DAILY_MAX_PER_TICKER on top of the defaults.
func LoadIntakeConfigFromEnv() (IntakeConfig, error) {
	cfg := DefaultIntakeConfig()

	var err error
	if cfg.LatestPerRun, err = IntFromEnv("INTAKE_LATEST_PER_RUN_PER_TICKER", cfg.LatestPerRun); err != nil {
		return IntakeConfig{}, err
	}
	if cfg.DailyMax, err = IntFromEnv("INTAKE_DAILY_MAX_PER_TICKER", cfg.DailyMax); err != nil {
		return IntakeConfig{}, err
	}
	return cfg, nil
}
