package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/github"
	"github.com/frostline/repofreeze/internal/metrics"
	"github.com/frostline/repofreeze/internal/model"
	"github.com/frostline/repofreeze/internal/unlock"
)

// Service drives check run synchronization across open pull requests. Each
// pass fetches the repository's open pull requests and publishes one fresh
// check run per head commit, with bounded concurrency and per-unit retry.
type Service struct {
	gateway  github.Gateway
	freezes  freezestore.Store
	registry unlock.Registry
	logger   *zap.Logger
	config   Config
	metrics  *metrics.Metrics

	// sleep is swapped out in tests to avoid waiting on real backoff
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a new refresh service with the given tuning.
func NewService(gateway github.Gateway, freezes freezestore.Store, registry unlock.Registry, config Config, logger *zap.Logger) *Service {
	return &Service{
		gateway:  gateway,
		freezes:  freezes,
		registry: registry,
		logger:   logger,
		config:   config,
		sleep:    sleepContext,
	}
}

// SetMetrics attaches the service metrics. Refreshes run without
// instrumentation when no metrics are set.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// sleepContext waits for the duration or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RefreshRepository synchronizes check runs for every open pull request in
// the repository. A nil freeze means the repository is not frozen and every
// pull request gets a passing check run.
//
// A failure to list pull requests aborts the whole pass. Failures updating
// individual pull requests are isolated: they are counted and recorded in
// the result but never cancel sibling updates.
func (s *Service) RefreshRepository(ctx context.Context, installationID int64, repo model.Repo, freeze *model.FreezeRecord) (*model.RefreshResult, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.RefreshDurationSeconds.WithLabelValues("repository"))
		defer timer.ObserveDuration()
	}

	s.logger.Info("Starting pull request refresh",
		zap.String("repository", repo.FullName()),
		zap.Int64("installation_id", installationID),
		zap.Bool("frozen", freeze != nil),
	)

	prs, err := s.gateway.ListOpenPullRequests(ctx, installationID, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list open pull requests: %w", err)
	}

	if len(prs) == 0 {
		s.logger.Info("No open pull requests found", zap.String("repository", repo.FullName()))
		return &model.RefreshResult{}, nil
	}

	result := &model.RefreshResult{Total: len(prs)}
	var mu sync.Mutex

	for start := 0; start < len(prs); start += s.config.MaxConcurrent {
		end := start + s.config.MaxConcurrent
		if end > len(prs) {
			end = len(prs)
		}
		chunk := prs[start:end]

		var wg sync.WaitGroup
		for _, pr := range chunk {
			wg.Add(1)
			go func(pr model.PullRequestRef) {
				defer wg.Done()

				err := s.updateWithRetry(ctx, installationID, repo, pr, s.conclusionFor(ctx, installationID, repo, pr, freeze), freeze)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("pull request #%d: %v", pr.Number, err))
				} else {
					result.Succeeded++
				}
			}(pr)
		}
		wg.Wait()

		// Pause between full chunks to respect rate limits
		if end < len(prs) {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return result, err
			}
		}
	}

	s.logger.Info("Pull request refresh finished",
		zap.String("repository", repo.FullName()),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// RefreshSingle re-evaluates and republishes the check run for one pull
// request. Used after a targeted unlock to avoid rescanning the repository.
func (s *Service) RefreshSingle(ctx context.Context, installationID int64, repo model.Repo, prNumber int) error {
	pr, err := s.gateway.GetPullRequest(ctx, installationID, repo, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch pull request: %w", err)
	}

	freeze, err := s.freezes.GetActive(ctx, installationID, repo.FullName())
	if err != nil && !errors.Is(err, freezestore.ErrNotFound) {
		return fmt.Errorf("failed to look up active freeze: %w", err)
	}
	if freeze != nil && freeze.EffectivelyExpired(time.Now()) {
		freeze = nil
	}

	conclusion := s.conclusionFor(ctx, installationID, repo, *pr, freeze)
	return s.updateWithRetry(ctx, installationID, repo, *pr, conclusion, freeze)
}

// RefreshAll sweeps every repository holding an active freeze, refreshing
// each in turn. Per-repository failures are collected into the returned map
// and do not stop the sweep.
func (s *Service) RefreshAll(ctx context.Context) (map[string]*model.RefreshResult, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.RefreshDurationSeconds.WithLabelValues("all"))
		defer timer.ObserveDuration()
	}

	s.logger.Info("Starting global pull request refresh")

	freezes, err := s.freezes.ListActive(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active freezes: %w", err)
	}

	results := make(map[string]*model.RefreshResult)
	if len(freezes) == 0 {
		s.logger.Info("No active freezes found")
		return results, nil
	}

	for i, freeze := range freezes {
		repo, err := model.ParseRepo(freeze.Repository)
		if err != nil {
			s.logger.Warn("Skipping freeze with invalid repository",
				zap.String("repository", freeze.Repository),
				zap.Error(err),
			)
			continue
		}

		result, err := s.RefreshRepository(ctx, freeze.InstallationID, repo, freeze)
		if err != nil {
			s.logger.Error("Repository refresh failed",
				zap.String("repository", freeze.Repository),
				zap.Error(err),
			)
			results[freeze.Repository] = &model.RefreshResult{
				Errors: []string{fmt.Sprintf("repository refresh failed: %v", err)},
			}
		} else {
			results[freeze.Repository] = result
		}

		// Spread repositories out under the global rate budget
		if i < len(freezes)-1 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

// conclusionFor computes the check run conclusion for one pull request.
// A freeze blocks the pull request only when its branch scope matches the
// pull request's base branch and no unlock override exists.
func (s *Service) conclusionFor(ctx context.Context, installationID int64, repo model.Repo, pr model.PullRequestRef, freeze *model.FreezeRecord) github.CheckRunConclusion {
	if freeze == nil || !freeze.AppliesToBranch(pr.BaseBranch) {
		return github.ConclusionSuccess
	}

	unlocked, err := s.registry.IsUnlocked(ctx, installationID, repo, pr.Number)
	if err != nil {
		// Fail closed: an unreadable registry must not lift the freeze
		s.logger.Warn("Failed to check unlock override, treating as locked",
			zap.String("repository", repo.FullName()),
			zap.Int("pr_number", pr.Number),
			zap.Error(err),
		)
		return github.ConclusionFailure
	}
	if unlocked {
		return github.ConclusionSuccess
	}

	return github.ConclusionFailure
}

// updateWithRetry publishes one check run, retrying with exponential backoff
// on failure.
func (s *Service) updateWithRetry(ctx context.Context, installationID int64, repo model.Repo, pr model.PullRequestRef, conclusion github.CheckRunConclusion, freeze *model.FreezeRecord) error {
	output := notFrozenOutput()
	if conclusion == github.ConclusionFailure && freeze != nil {
		output = frozenOutput(freeze)
	}

	run := github.CheckRun{
		Name:       github.CheckRunName,
		HeadSHA:    pr.HeadSHA,
		Status:     github.StatusCompleted,
		Conclusion: conclusion,
		Output:     output,
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.config.BaseRetryDelay * (1 << (attempt - 1))
			s.logger.Warn("Retrying check run update",
				zap.String("repository", repo.FullName()),
				zap.Int("pr_number", pr.Number),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = s.gateway.CreateCheckRun(ctx, installationID, repo, run)
		if lastErr == nil {
			s.recordUpdate(conclusion, "success")
			if attempt > 0 {
				s.logger.Info("Check run updated after retries",
					zap.String("repository", repo.FullName()),
					zap.Int("pr_number", pr.Number),
					zap.Int("retries", attempt),
				)
			}
			return nil
		}
	}

	s.recordUpdate(conclusion, "error")
	return fmt.Errorf("exhausted %d retries: %w", s.config.MaxRetries, lastErr)
}

func (s *Service) recordUpdate(conclusion github.CheckRunConclusion, status string) {
	if s.metrics != nil {
		s.metrics.CheckRunUpdatesTotal.WithLabelValues(string(conclusion), status).Inc()
	}
}
