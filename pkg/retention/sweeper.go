package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/querygate/pkg/persistence"
	"github.com/dukex/querygate/pkg/storage"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule runs the sweeper once a day.
	DefaultSchedule = "@daily"

	// DefaultLookback is how far past expiry the sweeper searches.
	DefaultLookback = 7 * 24 * time.Hour
)

// Sweeper deletes expired artifacts from object storage on a cron schedule.
// Execution records are left untouched.
type Sweeper struct {
	executions persistence.ExecutionRepository
	store      storage.Store
	policy     Policy
	schedule   string
	lookback   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type SweeperOption func(*Sweeper)

func WithSchedule(schedule string) SweeperOption {
	return func(s *Sweeper) {
		if schedule != "" {
			s.schedule = schedule
		}
	}
}

func WithLookback(lookback time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if lookback > 0 {
			s.lookback = lookback
		}
	}
}

func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func NewSweeper(
	logger *slog.Logger,
	executions persistence.ExecutionRepository,
	store storage.Store,
	policy Policy,
	opts ...SweeperOption,
) *Sweeper {
	s := &Sweeper{
		executions: executions,
		store:      store,
		policy:     policy,
		schedule:   DefaultSchedule,
		lookback:   DefaultLookback,
		logger:     logger.With("module", "retention_sweeper"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Checked int
	Deleted int
	Failed  int
}

// Sweep deletes the objects of artifacts that expired within the lookback window.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	// An artifact created before now-window has expired.
	to := s.now().Add(-s.policy.Window())
	from := to.Add(-s.lookback)

	executions, err := s.executions.ListExpiredArtifacts(ctx, from, to)
	if err != nil {
		return result, fmt.Errorf("failed to list expired artifacts: %w", err)
	}

	for _, execution := range executions {
		result.Checked++

		if err := s.store.Delete(ctx, *execution.ResultFilePath); err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "Failed to delete expired artifact",
				"request_id", execution.RequestID, "url", *execution.ResultFilePath, "error", err)

			continue
		}

		result.Deleted++
	}

	s.logger.InfoContext(ctx, "Retention sweep completed",
		"checked", result.Checked, "deleted", result.Deleted, "failed", result.Failed)

	return result, nil
}

// Start schedules Sweep. The returned error reports an invalid schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New()

	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c

	s.logger.InfoContext(ctx, "Retention sweeper started", "schedule", s.schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}

	s.cron = nil
}
