package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skywatch/skywatch/internal/skywatch/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPAddr:   "127.0.0.1:0",
		SecretKey:  "test-secret",
		LogLevel:   "error",
		LogFormat:  "text",
		SessionTTL: time.Hour,
		Cache: config.CacheConfig{
			Backend:    config.CacheBackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "cache.db"),
		},
		Gemini: config.GeminiConfig{APIKey: "test-key"},
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop()

	if a.sqlite == nil {
		t.Error("sqlite handle not retained for pruning")
	}
	if a.handler == nil {
		t.Error("http handler not built")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memcached"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendRedis
	// A port nothing listens on; Ping must fail fast instead of deferring
	// the failure to the first request.
	cfg.Cache.RedisAddr = "127.0.0.1:1"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}
