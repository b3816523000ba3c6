package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/github"
	"github.com/frostline/repofreeze/internal/model"
	"github.com/frostline/repofreeze/internal/unlock"
)

// Common errors returned by the lifecycle engine.
var (
	// ErrInvalidWindow is returned when a freeze window would end at or
	// before its start.
	ErrInvalidWindow = errors.New("freeze window must end after it starts")

	// ErrNoActiveFreeze is returned when an operation requires an active
	// freeze and none exists.
	ErrNoActiveFreeze = errors.New("no active freeze for repository")
)

// Refresher is the slice of the check run synchronizer the engine invokes.
// Refresh failures never roll back lifecycle transitions.
type Refresher interface {
	RefreshRepository(ctx context.Context, installationID int64, repo model.Repo, freeze *model.FreezeRecord) (*model.RefreshResult, error)
	RefreshSingle(ctx context.Context, installationID int64, repo model.Repo, prNumber int) error
}

// Engine owns the freeze lifecycle: creating and ending freezes, granting
// per-PR overrides, and answering frozen-state queries.
type Engine struct {
	freezes  freezestore.Store
	registry unlock.Registry
	refresh  Refresher
	gateway  github.Gateway
	logger   *zap.Logger
}

// New creates a lifecycle engine.
func New(freezes freezestore.Store, registry unlock.Registry, refresh Refresher, gateway github.Gateway, logger *zap.Logger) *Engine {
	return &Engine{
		freezes:  freezes,
		registry: registry,
		refresh:  refresh,
		gateway:  gateway,
		logger:   logger,
	}
}

// CreateFreezeRequest carries the parameters for a new freeze.
type CreateFreezeRequest struct {
	InstallationID int64
	Repo           model.Repo

	// Start defaults to now. A future start creates a scheduled freeze.
	Start *time.Time

	// End or Duration bound the window; when both are nil the freeze lasts
	// the default duration. End takes precedence over Duration.
	End      *time.Time
	Duration *time.Duration

	Reason *string
	Branch *string
	Actor  string

	// IssueNumber, when set, receives an acknowledgement comment.
	IssueNumber *int
}

// CreateFreeze validates, persists, and announces a new freeze. The record
// is created active when the start time has arrived, scheduled otherwise.
// Returns freezestore.ErrOverlap when the window intersects an existing
// active freeze, ErrInvalidWindow on a degenerate window.
func (e *Engine) CreateFreeze(ctx context.Context, req CreateFreezeRequest) (*model.FreezeRecord, error) {
	now := time.Now().UTC()

	start := now
	if req.Start != nil {
		start = req.Start.UTC()
	}

	var end time.Time
	switch {
	case req.End != nil:
		end = req.End.UTC()
	case req.Duration != nil:
		end = start.Add(*req.Duration)
	default:
		end = start.Add(model.DefaultFreezeDuration)
	}

	if !end.After(start) {
		return nil, fmt.Errorf("%w: start %s, end %s", ErrInvalidWindow, start, end)
	}

	var rec *model.FreezeRecord
	if start.After(now) {
		rec = model.NewScheduledFreeze(req.Repo, req.InstallationID, start, &end, req.Reason, req.Branch, req.Actor)
	} else {
		rec = model.NewFreeze(req.Repo, req.InstallationID, start, &end, req.Reason, req.Branch, req.Actor)
	}

	if err := e.freezes.Create(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Info("Freeze created",
		zap.String("id", rec.ID.String()),
		zap.String("repository", rec.Repository),
		zap.Int64("installation_id", rec.InstallationID),
		zap.String("status", string(rec.Status)),
		zap.Time("started_at", rec.StartedAt),
		zap.Timep("expires_at", rec.ExpiresAt),
		zap.String("initiated_by", rec.InitiatedBy),
	)

	// An immediate freeze flips existing open pull requests to failing.
	// Refresh failures are logged but never roll back the freeze.
	if rec.Status == model.StatusActive {
		if _, err := e.refresh.RefreshRepository(ctx, req.InstallationID, req.Repo, rec); err != nil {
			e.logger.Error("Post-freeze refresh failed",
				zap.String("repository", rec.Repository),
				zap.Error(err),
			)
		}
	}

	if req.IssueNumber != nil {
		message := freezeSuccessMessage(rec.Repository, req.Duration, req.Reason)
		if rec.Status == model.StatusScheduled {
			message = scheduleSuccessMessage(rec.Repository, rec.StartedAt)
		}
		e.comment(ctx, req.InstallationID, req.Repo, *req.IssueNumber, message)
	}

	return rec, nil
}

// EndFreeze transitions every active freeze on the repository to ended,
// clears the repository's unlock overrides, and refreshes open pull
// requests to passing. Returns ErrNoActiveFreeze when nothing is active.
func (e *Engine) EndFreeze(ctx context.Context, installationID int64, repo model.Repo, actor string) error {
	return e.endFreeze(ctx, installationID, repo, actor, nil)
}

// EndFreezeWithComment is EndFreeze plus an acknowledgement comment on the
// given issue.
func (e *Engine) EndFreezeWithComment(ctx context.Context, installationID int64, repo model.Repo, actor string, issueNumber int) error {
	return e.endFreeze(ctx, installationID, repo, actor, &issueNumber)
}

func (e *Engine) endFreeze(ctx context.Context, installationID int64, repo model.Repo, actor string, issueNumber *int) error {
	active, err := e.freezes.List(ctx, freezestore.ListFilter{
		InstallationID: installationID,
		Repository:     repo.FullName(),
		ActiveOnly:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to list active freezes: %w", err)
	}
	if len(active) == 0 {
		return ErrNoActiveFreeze
	}

	for _, rec := range active {
		if _, err := e.freezes.UpdateStatus(ctx, rec.ID, model.StatusEnded, &actor); err != nil {
			return fmt.Errorf("failed to end freeze %s: %w", rec.ID, err)
		}
	}

	cleared, err := e.registry.Clear(ctx, installationID, repo)
	if err != nil {
		// Overrides are moot once the freeze is ended; log and continue
		e.logger.Error("Failed to clear unlock overrides",
			zap.String("repository", repo.FullName()),
			zap.Error(err),
		)
	}

	e.logger.Info("Freeze ended",
		zap.String("repository", repo.FullName()),
		zap.Int64("installation_id", installationID),
		zap.String("ended_by", actor),
		zap.Int("freezes_ended", len(active)),
		zap.Int("overrides_cleared", cleared),
	)

	if _, err := e.refresh.RefreshRepository(ctx, installationID, repo, nil); err != nil {
		e.logger.Error("Post-unfreeze refresh failed",
			zap.String("repository", repo.FullName()),
			zap.Error(err),
		)
	}

	if issueNumber != nil {
		e.comment(ctx, installationID, repo, *issueNumber, unfreezeSuccessMessage(repo.FullName()))
	}

	return nil
}

// IsFrozen reports whether the repository has a stored active freeze.
func (e *Engine) IsFrozen(ctx context.Context, installationID int64, repo model.Repo) (bool, error) {
	_, err := e.freezes.GetActive(ctx, installationID, repo.FullName())
	if err != nil {
		if errors.Is(err, freezestore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetActive returns the repository's current active freeze record, or
// freezestore.ErrNotFound.
func (e *Engine) GetActive(ctx context.Context, installationID int64, repo model.Repo) (*model.FreezeRecord, error) {
	return e.freezes.GetActive(ctx, installationID, repo.FullName())
}

// UnlockPR grants one pull request an override to merge during the active
// freeze, then refreshes just that pull request. Returns ErrNoActiveFreeze
// when the repository is not frozen.
func (e *Engine) UnlockPR(ctx context.Context, installationID int64, repo model.Repo, prNumber int, actor string) (*model.UnlockedPr, error) {
	if _, err := e.freezes.GetActive(ctx, installationID, repo.FullName()); err != nil {
		if errors.Is(err, freezestore.ErrNotFound) {
			return nil, ErrNoActiveFreeze
		}
		return nil, fmt.Errorf("failed to look up active freeze: %w", err)
	}

	record, err := e.registry.Unlock(ctx, installationID, repo, prNumber, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to record override: %w", err)
	}

	if err := e.refresh.RefreshSingle(ctx, installationID, repo, prNumber); err != nil {
		e.logger.Error("Post-unlock refresh failed",
			zap.String("repository", repo.FullName()),
			zap.Int("pr_number", prNumber),
			zap.Error(err),
		)
	}

	// Pull requests double as issues, so the acknowledgement lands on the
	// unlocked pull request itself
	e.comment(ctx, installationID, repo, prNumber, unlockSuccessMessage(repo.FullName(), prNumber))

	return record, nil
}

// FreezeStatus is the read-time freeze state of one repository.
type FreezeStatus struct {
	// Frozen reports whether a freeze currently blocks the repository.
	Frozen bool `json:"frozen"`

	// Expired is set when an active record exists but its window has
	// passed. The stored status stays active until explicitly ended.
	Expired bool `json:"expired"`

	// Record is the active freeze record, if any.
	Record *model.FreezeRecord `json:"record,omitempty"`
}

// Status computes the repository's current freeze state, recomputing window
// expiry at read time.
func (e *Engine) Status(ctx context.Context, installationID int64, repo model.Repo) (*FreezeStatus, error) {
	rec, err := e.freezes.GetActive(ctx, installationID, repo.FullName())
	if err != nil {
		if errors.Is(err, freezestore.ErrNotFound) {
			return &FreezeStatus{}, nil
		}
		return nil, err
	}

	if rec.EffectivelyExpired(time.Now()) {
		return &FreezeStatus{Expired: true, Record: rec}, nil
	}

	return &FreezeStatus{Frozen: true, Record: rec}, nil
}

// comment posts a best-effort acknowledgement comment.
func (e *Engine) comment(ctx context.Context, installationID int64, repo model.Repo, issueNumber int, body string) {
	if err := e.gateway.CreateIssueComment(ctx, installationID, repo, issueNumber, body); err != nil {
		e.logger.Warn("Failed to post acknowledgement comment",
			zap.String("repository", repo.FullName()),
			zap.Int("issue_number", issueNumber),
			zap.Error(err),
		)
	}
}
