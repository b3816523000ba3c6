package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/metrics"
	"github.com/frostline/repofreeze/internal/model"
)

// DefaultInterval is how often the scheduler looks for due freezes.
const DefaultInterval = 60 * time.Second

// Refresher is the slice of the check run synchronizer the scheduler
// invokes after activating a freeze.
type Refresher interface {
	RefreshRepository(ctx context.Context, installationID int64, repo model.Repo, freeze *model.FreezeRecord) (*model.RefreshResult, error)
}

// Scheduler activates scheduled freezes once their start time arrives. It
// is the only component that converts the passage of time into a state
// change.
type Scheduler struct {
	freezes  freezestore.Store
	refresh  Refresher
	logger   *zap.Logger
	interval time.Duration
	cron     *cron.Cron
	metrics  *metrics.Metrics
}

// New creates a scheduler ticking at the given interval. A non-positive
// interval falls back to the default.
func New(freezes freezestore.Store, refresh Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		freezes:  freezes,
		refresh:  refresh,
		logger:   logger,
		interval: interval,
	}
}

// SetMetrics attaches the service metrics. Activation runs without
// instrumentation when no metrics are set.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start begins the recurring activation loop.
func (s *Scheduler) Start() error {
	c := cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.runTick(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule activation loop: %w", err)
	}

	c.Start()
	s.cron = c

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// runTick activates every scheduled freeze whose start time has arrived.
// A failure on one record is logged and never blocks the rest.
func (s *Scheduler) runTick(ctx context.Context) {
	now := time.Now()

	due, err := s.freezes.ListScheduledDue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due freezes", zap.Error(err))
		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.Info("Activating due freezes", zap.Int("count", len(due)))

	for _, rec := range due {
		activated, err := s.freezes.UpdateStatus(ctx, rec.ID, model.StatusActive, nil)
		if err != nil {
			s.logger.Error("Failed to activate freeze",
				zap.String("id", rec.ID.String()),
				zap.String("repository", rec.Repository),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Freeze activated",
			zap.String("id", activated.ID.String()),
			zap.String("repository", activated.Repository),
			zap.Int64("installation_id", activated.InstallationID),
		)

		if s.metrics != nil {
			s.metrics.SchedulerActivationsTotal.Inc()
		}

		repo, err := model.ParseRepo(activated.Repository)
		if err != nil {
			s.logger.Error("Activated freeze has invalid repository",
				zap.String("repository", activated.Repository),
				zap.Error(err),
			)
			continue
		}

		if _, err := s.refresh.RefreshRepository(ctx, activated.InstallationID, repo, activated); err != nil {
			s.logger.Error("Post-activation refresh failed",
				zap.String("repository", activated.Repository),
				zap.Error(err),
			)
		}
	}
}
