package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// envStringOr returns the named environment variable, or defaultValue when
// unset or empty.
func envStringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// envRequired returns the named environment variable or an error when it is
// unset or empty. It never calls os.Exit; the caller decides how to fail.
func envRequired(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("config: required environment variable %q is not set", name)
	}
	return v, nil
}

// envIntOr parses the named environment variable as a decimal integer,
// falling back to defaultValue when unset or unparseable.
func envIntOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// envDurationOr parses the named environment variable as a time.Duration
// (e.g. "30s", "1h"), falling back to defaultValue when unset or unparseable.
func envDurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
