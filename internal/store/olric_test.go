package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestStore starts a single-node embedded Olric on the given port.
// These tests run a real server, so they are skipped in short mode.
func newTestStore(t *testing.T, port int) *OlricStore {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger, _ := zap.NewDevelopment()

	cfg := NewDefaultOlricConfig()
	cfg.BindPort = port
	cfg.LogLevel = "ERROR"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	store, err := NewOlricStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create Olric store: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := store.Close(shutdownCtx); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	return store
}

func TestOlricStore_SingleNode(t *testing.T) {
	store := newTestStore(t, 13320)
	ctx := context.Background()

	key := "42/octo/widgets#7"
	value := `{"pr_number":7}`
	if err := store.Put(ctx, key, value, 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != value {
		t.Errorf("Get() = %v, want %v", got, value)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true")
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	exists, err = store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() after delete failed: %v", err)
	}
	if exists {
		t.Error("Exists() after delete = true, want false")
	}

	if _, err := store.Get(ctx, key); err == nil {
		t.Error("Get() on deleted key should return error")
	}
}

func TestOlricStore_PutWithTTL(t *testing.T) {
	store := newTestStore(t, 13321)
	ctx := context.Background()

	key := "ttl-key"
	if err := store.Put(ctx, key, "ttl-value", 2*time.Second); err != nil {
		t.Fatalf("Put() with TTL failed: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() for TTL key failed: %v", err)
	}
	if !exists {
		t.Error("Exists() for TTL key = false, want true")
	}

	time.Sleep(3 * time.Second)

	exists, err = store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() after TTL failed: %v", err)
	}
	if exists {
		t.Error("Exists() after TTL expiry = true, want false")
	}
}

func TestOlricStore_Scan(t *testing.T) {
	store := newTestStore(t, 13322)
	ctx := context.Background()

	// Two overrides for octo/widgets and one for octo/gadgets
	keys := []string{
		"42/octo/widgets#7",
		"42/octo/widgets#9",
		"42/octo/gadgets#3",
	}
	for _, k := range keys {
		if err := store.Put(ctx, k, "override", 0); err != nil {
			t.Fatalf("Put(%q) failed: %v", k, err)
		}
	}

	matched, err := store.Scan(ctx, "^42/octo/widgets#")
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("Scan() returned %d keys, want 2: %v", len(matched), matched)
	}
	for _, k := range matched {
		if k != "42/octo/widgets#7" && k != "42/octo/widgets#9" {
			t.Errorf("Scan() returned unexpected key %q", k)
		}
	}

	matched, err = store.Scan(ctx, "^99/")
	if err != nil {
		t.Fatalf("Scan() with no matches failed: %v", err)
	}
	if len(matched) != 0 {
		t.Errorf("Scan() with no matches returned %v, want empty", matched)
	}
}

func TestOlricStore_Ping(t *testing.T) {
	store := newTestStore(t, 13323)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestOlricStore_Stats(t *testing.T) {
	store := newTestStore(t, 13324)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}

	if stats.ClusterMembers != 1 {
		t.Errorf("Stats().ClusterMembers = %d, want 1", stats.ClusterMembers)
	}
	if stats.PartitionCount != int(DefaultPartitionCount) {
		t.Errorf("Stats().PartitionCount = %d, want %d", stats.PartitionCount, DefaultPartitionCount)
	}
	if stats.ReplicationFactor != DefaultReplicationFactor {
		t.Errorf("Stats().ReplicationFactor = %d, want %d", stats.ReplicationFactor, DefaultReplicationFactor)
	}
}

func TestOlricStore_DeleteIdempotent(t *testing.T) {
	store := newTestStore(t, 13325)
	ctx := context.Background()

	key := "non-existent-key"
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete() on non-existent key failed: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Second Delete() on non-existent key failed: %v", err)
	}
}
