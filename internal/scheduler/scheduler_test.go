package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/model"
)

// fakeFreezeStore serves scheduled freezes and records activations.
type fakeFreezeStore struct {
	due       []*model.FreezeRecord
	listErr   error
	failIDs   map[uuid.UUID]bool
	activated []uuid.UUID
}

func (s *fakeFreezeStore) Create(ctx context.Context, rec *model.FreezeRecord) error { return nil }
func (s *fakeFreezeStore) Get(ctx context.Context, id uuid.UUID) (*model.FreezeRecord, error) {
	return nil, freezestore.ErrNotFound
}
func (s *fakeFreezeStore) List(ctx context.Context, filter freezestore.ListFilter) ([]*model.FreezeRecord, error) {
	return nil, nil
}
func (s *fakeFreezeStore) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (s *fakeFreezeStore) GetActive(ctx context.Context, installationID int64, repository string) (*model.FreezeRecord, error) {
	return nil, freezestore.ErrNotFound
}
func (s *fakeFreezeStore) ListActive(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error) {
	return nil, nil
}

func (s *fakeFreezeStore) ListScheduledDue(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.due, nil
}

func (s *fakeFreezeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, endedBy *string) (*model.FreezeRecord, error) {
	if s.failIDs[id] {
		return nil, errors.New("update failed")
	}
	for _, rec := range s.due {
		if rec.ID == id {
			rec.Status = status
			s.activated = append(s.activated, id)
			return rec, nil
		}
	}
	return nil, freezestore.ErrNotFound
}

// countingRefresher records which repositories were refreshed.
type countingRefresher struct {
	repos []string
	err   error
}

func (r *countingRefresher) RefreshRepository(ctx context.Context, installationID int64, repo model.Repo, freeze *model.FreezeRecord) (*model.RefreshResult, error) {
	r.repos = append(r.repos, repo.FullName())
	if r.err != nil {
		return nil, r.err
	}
	return &model.RefreshResult{}, nil
}

func scheduledFreeze(repo string) *model.FreezeRecord {
	return &model.FreezeRecord{
		ID:             uuid.New(),
		Repository:     repo,
		InstallationID: 42,
		StartedAt:      time.Now().Add(-time.Minute),
		InitiatedBy:    "alice",
		Status:         model.StatusScheduled,
	}
}

func TestRunTick_ActivatesDueFreezes(t *testing.T) {
	store := &fakeFreezeStore{
		due: []*model.FreezeRecord{
			scheduledFreeze("octo/widgets"),
			scheduledFreeze("octo/gadgets"),
		},
	}
	refresher := &countingRefresher{}
	sched := New(store, refresher, time.Minute, zap.NewNop())

	sched.runTick(context.Background())

	if len(store.activated) != 2 {
		t.Errorf("activated %d freezes, want 2", len(store.activated))
	}
	for _, rec := range store.due {
		if rec.Status != model.StatusActive {
			t.Errorf("freeze %s status = %s, want active", rec.Repository, rec.Status)
		}
	}

	// Every activated repository gets a refresh
	if len(refresher.repos) != 2 {
		t.Errorf("refreshed %d repositories, want 2", len(refresher.repos))
	}
}

func TestRunTick_NoDueFreezes(t *testing.T) {
	store := &fakeFreezeStore{}
	refresher := &countingRefresher{}
	sched := New(store, refresher, time.Minute, zap.NewNop())

	sched.runTick(context.Background())

	if len(refresher.repos) != 0 {
		t.Errorf("refreshed %d repositories with nothing due, want 0", len(refresher.repos))
	}
}

func TestRunTick_FailureIsolation(t *testing.T) {
	failing := scheduledFreeze("octo/widgets")
	healthy := scheduledFreeze("octo/gadgets")
	store := &fakeFreezeStore{
		due:     []*model.FreezeRecord{failing, healthy},
		failIDs: map[uuid.UUID]bool{failing.ID: true},
	}
	refresher := &countingRefresher{}
	sched := New(store, refresher, time.Minute, zap.NewNop())

	sched.runTick(context.Background())

	// The failing record never halts the loop or skips later records
	if healthy.Status != model.StatusActive {
		t.Errorf("healthy freeze status = %s, want active", healthy.Status)
	}
	if len(refresher.repos) != 1 || refresher.repos[0] != "octo/gadgets" {
		t.Errorf("refreshed repositories = %v, want [octo/gadgets]", refresher.repos)
	}
}

func TestRunTick_ListFailure(t *testing.T) {
	store := &fakeFreezeStore{listErr: errors.New("db down")}
	refresher := &countingRefresher{}
	sched := New(store, refresher, time.Minute, zap.NewNop())

	// Must not panic; next tick will retry
	sched.runTick(context.Background())

	if len(refresher.repos) != 0 {
		t.Errorf("refreshed %d repositories after list failure, want 0", len(refresher.repos))
	}
}

func TestRunTick_RefreshFailureDoesNotBlockActivation(t *testing.T) {
	store := &fakeFreezeStore{
		due: []*model.FreezeRecord{
			scheduledFreeze("octo/widgets"),
			scheduledFreeze("octo/gadgets"),
		},
	}
	refresher := &countingRefresher{err: errors.New("api down")}
	sched := New(store, refresher, time.Minute, zap.NewNop())

	sched.runTick(context.Background())

	// Both freezes activate even though every refresh failed
	if len(store.activated) != 2 {
		t.Errorf("activated %d freezes, want 2", len(store.activated))
	}
}

func TestStartStop(t *testing.T) {
	store := &fakeFreezeStore{}
	sched := New(store, &countingRefresher{}, time.Hour, zap.NewNop())

	if err := sched.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	sched.Stop()
}

func TestNew_DefaultInterval(t *testing.T) {
	sched := New(&fakeFreezeStore{}, &countingRefresher{}, 0, zap.NewNop())
	if sched.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", sched.interval, DefaultInterval)
	}
}
