package unlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/model"
	"github.com/frostline/repofreeze/internal/store"
)

// ErrOverrideNotFound is returned when no override record exists for a
// pull request.
var ErrOverrideNotFound = errors.New("override not found")

// Registry defines the interface for managing per-PR unlock overrides.
// An override lets one pull request bypass an active freeze; overrides are
// cleared in bulk when the repository's freeze ends.
type Registry interface {
	// Unlock records an override for the given pull request. The operation
	// is idempotent; re-unlocking replaces the existing record.
	Unlock(ctx context.Context, installationID int64, repo model.Repo, prNumber int, unlockedBy string) (*model.UnlockedPr, error)

	// IsUnlocked reports whether the given pull request holds an override.
	IsUnlocked(ctx context.Context, installationID int64, repo model.Repo, prNumber int) (bool, error)

	// GetOverride retrieves the override record for a pull request.
	// Returns ErrOverrideNotFound if no override exists.
	GetOverride(ctx context.Context, installationID int64, repo model.Repo, prNumber int) (*model.UnlockedPr, error)

	// Clear removes every override for the given repository. Called once
	// when the repository's freeze ends. Idempotent.
	Clear(ctx context.Context, installationID int64, repo model.Repo) (int, error)
}

// OlricRegistry implements Registry using the Olric distributed store.
type OlricRegistry struct {
	store  store.Store
	logger *zap.Logger
}

// NewOlricRegistry creates a new OlricRegistry.
func NewOlricRegistry(store store.Store, logger *zap.Logger) *OlricRegistry {
	return &OlricRegistry{
		store:  store,
		logger: logger,
	}
}

// overrideKey builds the store key for one override record.
// Layout: <installation>/<owner>/<name>#<pr>.
func overrideKey(installationID int64, repo model.Repo, prNumber int) string {
	return fmt.Sprintf("%d/%s/%s#%d", installationID, repo.Owner, repo.Name, prNumber)
}

// repoKeyPattern matches every override key belonging to one repository.
func repoKeyPattern(installationID int64, repo model.Repo) string {
	return fmt.Sprintf("^%d/%s/%s#", installationID, regexp.QuoteMeta(repo.Owner), regexp.QuoteMeta(repo.Name))
}

// Unlock records an override for the given pull request.
func (r *OlricRegistry) Unlock(ctx context.Context, installationID int64, repo model.Repo, prNumber int, unlockedBy string) (*model.UnlockedPr, error) {
	if prNumber <= 0 {
		return nil, fmt.Errorf("pull request number must be positive, got: %d", prNumber)
	}
	if unlockedBy == "" {
		return nil, fmt.Errorf("unlocked_by cannot be empty")
	}

	record := &model.UnlockedPr{
		Repository:     repo.FullName(),
		InstallationID: installationID,
		PRNumber:       prNumber,
		UnlockedBy:     unlockedBy,
		UnlockedAt:     time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize override: %w", err)
	}

	// Overrides live until the freeze ends, so no TTL
	key := overrideKey(installationID, repo, prNumber)
	if err := r.store.Put(ctx, key, string(data), 0); err != nil {
		return nil, fmt.Errorf("failed to store override: %w", err)
	}

	r.logger.Info("Pull request unlocked",
		zap.String("repository", repo.FullName()),
		zap.Int64("installation_id", installationID),
		zap.Int("pr_number", prNumber),
		zap.String("unlocked_by", unlockedBy),
	)

	return record, nil
}

// IsUnlocked reports whether the given pull request holds an override.
func (r *OlricRegistry) IsUnlocked(ctx context.Context, installationID int64, repo model.Repo, prNumber int) (bool, error) {
	exists, err := r.store.Exists(ctx, overrideKey(installationID, repo, prNumber))
	if err != nil {
		return false, fmt.Errorf("failed to check override: %w", err)
	}
	return exists, nil
}

// GetOverride retrieves the override record for a pull request.
func (r *OlricRegistry) GetOverride(ctx context.Context, installationID int64, repo model.Repo, prNumber int) (*model.UnlockedPr, error) {
	value, err := r.store.Get(ctx, overrideKey(installationID, repo, prNumber))
	if err != nil {
		if err.Error() == "key not found" {
			return nil, ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to get override: %w", err)
	}

	data, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("invalid override data type: expected string, got %T", value)
	}

	var record model.UnlockedPr
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize override: %w", err)
	}

	return &record, nil
}

// Clear removes every override for the given repository and returns the
// number of records removed.
func (r *OlricRegistry) Clear(ctx context.Context, installationID int64, repo model.Repo) (int, error) {
	keys, err := r.store.Scan(ctx, repoKeyPattern(installationID, repo))
	if err != nil {
		return 0, fmt.Errorf("failed to scan overrides: %w", err)
	}

	cleared := 0
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			return cleared, fmt.Errorf("failed to delete override %s: %w", key, err)
		}
		cleared++
	}

	if cleared > 0 {
		r.logger.Info("Cleared pull request overrides",
			zap.String("repository", repo.FullName()),
			zap.Int64("installation_id", installationID),
			zap.Int("cleared", cleared),
		)
	}

	return cleared, nil
}
