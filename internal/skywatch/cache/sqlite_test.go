package cache_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/skywatch/skywatch/internal/skywatch/cache"
)

func newStore(t *testing.T) *cache.SQLite {
	t.Helper()
	s, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache-test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_MissingKeyIsAbsentNotError(t *testing.T) {
	s := newStore(t)

	val, present, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if present {
		t.Errorf("expected absent, got value %q", val)
	}
}

func TestSQLite_SetGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Non-UTF-8 payloads must round-trip unchanged.
	payload := []byte{0x80, 0x01, 0xff, 'h', 'i', 0x00}
	if err := s.SetWithTTL(ctx, "k1", payload, time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}

	got, present, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !present {
		t.Fatal("expected present")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %v want %v", got, payload)
	}
}

func TestSQLite_OverwriteReplacesValue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k1", []byte("old"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if err := s.SetWithTTL(ctx, "k1", []byte("new"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL overwrite: %v", err)
	}

	got, present, err := s.Get(ctx, "k1")
	if err != nil || !present {
		t.Fatalf("Get: present=%v err=%v", present, err)
	}
	if string(got) != "new" {
		t.Errorf("expected overwritten value, got %q", got)
	}
}

func TestSQLite_ExpiredEntryIsAbsent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k1", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	_, present, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if present {
		t.Error("expected expired entry to read as absent")
	}
}

func TestSQLite_WriteResetsTTL(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k1", []byte("v1"), 20*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	// Rewrite with a fresh window before the first one elapses.
	time.Sleep(10 * time.Millisecond)
	if err := s.SetWithTTL(ctx, "k1", []byte("v2"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL rewrite: %v", err)
	}
	// The original window has long passed; the entry must still be present.
	time.Sleep(30 * time.Millisecond)

	got, present, err := s.Get(ctx, "k1")
	if err != nil || !present {
		t.Fatalf("Get after rewrite: present=%v err=%v", present, err)
	}
	if string(got) != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
}

func TestSQLite_PruneExpired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "stale", []byte("v"), -time.Second); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if err := s.SetWithTTL(ctx, "fresh", []byte("v"), time.Hour); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}

	if err := s.PruneExpired(ctx); err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}

	if _, present, _ := s.Get(ctx, "stale"); present {
		t.Error("stale entry survived prune")
	}
	if _, present, _ := s.Get(ctx, "fresh"); !present {
		t.Error("fresh entry was pruned")
	}
}
