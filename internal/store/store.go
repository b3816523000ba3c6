package store

import (
	"context"
	"time"
)

// Store defines the interface for the distributed key/value storage backing
// the unlock registry. Override records are small and repository-scoped, so
// the interface is a plain KV surface plus a key scan used to purge a
// repository's overrides when its freeze ends.
type Store interface {
	// Put stores a value with an optional TTL.
	// If ttl is 0, the key will not expire.
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get retrieves a value for the given key.
	// Returns an error if the key does not exist or on a connection issue.
	Get(ctx context.Context, key string) (interface{}, error)

	// Delete removes a value for the given key.
	// Returns nil if the key doesn't exist (idempotent operation).
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the store.
	Exists(ctx context.Context, key string) (bool, error)

	// Scan returns every key matching the given regular expression.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies connectivity to the store.
	// Used by health checks to ensure the store is reachable and responsive.
	Ping(ctx context.Context) error

	// Stats returns current statistics about the store.
	Stats(ctx context.Context) (*StoreStats, error)

	// Close gracefully shuts down the store connection. For the embedded
	// store this also leaves the cluster properly.
	Close(ctx context.Context) error
}

// StoreStats represents statistics about the distributed store, used for
// monitoring cluster health.
type StoreStats struct {
	// ClusterMembers is the number of active members in the cluster.
	ClusterMembers int

	// PartitionCount is the total number of partitions in the cluster.
	PartitionCount int

	// ReplicationFactor is the number of copies of each partition,
	// including both primary and backup replicas.
	ReplicationFactor int
}
