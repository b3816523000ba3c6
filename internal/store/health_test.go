package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/health"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	data     map[string]interface{}
	pingErr  error
	putErr   error
	getErr   error
	statsErr error
	members  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:    make(map[string]interface{}),
		members: 1,
	}
}

func (f *fakeStore) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) Stats(ctx context.Context) (*StoreStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &StoreStats{
		ClusterMembers:    f.members,
		PartitionCount:    271,
		ReplicationFactor: 1,
	}, nil
}

func (f *fakeStore) Close(ctx context.Context) error {
	return nil
}

func TestConnectionHealthChecker(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	checker := NewConnectionHealthChecker(logger, newFakeStore())

	if checker.Name() != "olric-connection" {
		t.Errorf("Name() = %s, want olric-connection", checker.Name())
	}

	result := checker.Check(ctx)
	if result.Status != health.StatusOK {
		t.Errorf("Check() status = %s, want %s, message: %s", result.Status, health.StatusOK, result.Message)
	}

	failing := newFakeStore()
	failing.pingErr = errors.New("connection refused")
	checker = NewConnectionHealthChecker(logger, failing)

	result = checker.Check(ctx)
	if result.Status != health.StatusError {
		t.Errorf("Check() with failing ping status = %s, want %s", result.Status, health.StatusError)
	}
}

func TestClusterHealthChecker(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("single node always passes", func(t *testing.T) {
		checker := NewClusterHealthChecker(logger, newFakeStore(), 1, true)

		if checker.Name() != "olric-cluster" {
			t.Errorf("Name() = %s, want olric-cluster", checker.Name())
		}

		result := checker.Check(ctx)
		if result.Status != health.StatusOK {
			t.Errorf("Check() status = %s, want %s, message: %s", result.Status, health.StatusOK, result.Message)
		}
	})

	t.Run("quorum met", func(t *testing.T) {
		store := newFakeStore()
		store.members = 3
		checker := NewClusterHealthChecker(logger, store, 2, false)

		result := checker.Check(ctx)
		if result.Status != health.StatusOK {
			t.Errorf("Check() status = %s, want %s, message: %s", result.Status, health.StatusOK, result.Message)
		}
	})

	t.Run("quorum not met", func(t *testing.T) {
		store := newFakeStore()
		store.members = 1
		checker := NewClusterHealthChecker(logger, store, 2, false)

		result := checker.Check(ctx)
		if result.Status != health.StatusNotReady {
			t.Errorf("Check() status = %s, want %s", result.Status, health.StatusNotReady)
		}
	})

	t.Run("stats failure", func(t *testing.T) {
		store := newFakeStore()
		store.statsErr = errors.New("cluster unreachable")
		checker := NewClusterHealthChecker(logger, store, 1, false)

		result := checker.Check(ctx)
		if result.Status != health.StatusError {
			t.Errorf("Check() status = %s, want %s", result.Status, health.StatusError)
		}
	})
}

func TestStorageHealthChecker(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	store := newFakeStore()
	checker := NewStorageHealthChecker(logger, store)

	if checker.Name() != "olric-storage" {
		t.Errorf("Name() = %s, want olric-storage", checker.Name())
	}

	result := checker.Check(ctx)
	if result.Status != health.StatusOK {
		t.Errorf("Check() status = %s, want %s, message: %s", result.Status, health.StatusOK, result.Message)
	}

	// Test key must be cleaned up after a successful check
	if len(store.data) != 0 {
		t.Errorf("test key not cleaned up, %d keys remain", len(store.data))
	}

	failing := newFakeStore()
	failing.putErr = errors.New("write failed")
	checker = NewStorageHealthChecker(logger, failing)

	result = checker.Check(ctx)
	if result.Status != health.StatusError {
		t.Errorf("Check() with failing write status = %s, want %s", result.Status, health.StatusError)
	}
}
