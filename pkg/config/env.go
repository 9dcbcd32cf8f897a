package config

import (
	"fmt"
	"os"
	"strconv"
)

// GetEnvOrDefault returns the value of key, or def when unset or empty.
func GetEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// IntFromEnv parses key as an integer. Unset returns def; a set but
// unparseable value is a configuration error.
func IntFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidEnv, key, v)
	}
	return n, nil
}

// lenientIntFromEnv parses key as an integer, falling back to def on any
// unparseable value. Used where the contract forgives bad input instead of
// failing the process.
func lenientIntFromEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
