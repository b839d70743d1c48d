package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// Cycle is one named unit of periodic work.
type Cycle struct {
	// Name identifies the cycle in logs and in the distributed lock key.
	Name string
	// Interval is the tick period.
	Interval time.Duration
	// Run executes a single iteration. A returned error is logged; it does
	// not stop the cycle.
	Run func(ctx context.Context) error
	// Exclusive takes the distributed lock "cycle:<name>" for each
	// iteration, so only one process instance runs it at a time.
	Exclusive bool
	// LockTTL bounds how long one iteration may hold the lock. Defaults
	// to 2× Interval.
	LockTTL time.Duration
}

// Scheduler runs a set of cycles concurrently. Each cycle ticks on its own
// interval; an iteration still in flight when the next tick fires is skipped
// rather than overlapped.
type Scheduler struct {
	cycles []Cycle
	locks  domain.LockManager
	logger *slog.Logger
}

// New creates a Scheduler. locks may be nil when no cycle is Exclusive.
func New(locks domain.LockManager, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		locks:  locks,
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Add registers a cycle. Must be called before Run.
func (s *Scheduler) Add(c Cycle) {
	s.cycles = append(s.cycles, c)
}

// Run starts all cycles and blocks until ctx is cancelled or a cycle fails
// in a way it cannot continue from.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.cycles) == 0 {
		return fmt.Errorf("scheduler: no cycles registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range s.cycles {
		c := s.cycles[i]
		if c.Interval <= 0 {
			return fmt.Errorf("scheduler: cycle %q has no interval", c.Name)
		}
		g.Go(func() error {
			err := s.runCycle(ctx, c)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("cycle %s: %w", c.Name, err)
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context, c Cycle) error {
	s.logger.Info("cycle starting",
		slog.String("cycle", c.Name),
		slog.Duration("interval", c.Interval),
		slog.Bool("exclusive", c.Exclusive),
	)

	// Iterations run synchronously on this goroutine, so a slow iteration
	// coalesces ticks instead of overlapping itself.
	iterate := func() {
		started := time.Now()
		if err := s.iterate(ctx, c); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Debug("cycle lock held elsewhere", slog.String("cycle", c.Name))
				return
			}
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("cycle iteration failed",
					slog.String("cycle", c.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		s.logger.Debug("cycle iteration done",
			slog.String("cycle", c.Name),
			slog.Duration("took", time.Since(started)),
		)
	}

	// Run immediately on start.
	iterate()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cycle stopped", slog.String("cycle", c.Name))
			return ctx.Err()
		case <-ticker.C:
			iterate()
		}
	}
}

func (s *Scheduler) iterate(ctx context.Context, c Cycle) error {
	if !c.Exclusive || s.locks == nil {
		return c.Run(ctx)
	}

	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = 2 * c.Interval
	}
	unlock, err := s.locks.Acquire(ctx, "cycle:"+c.Name, ttl)
	if err != nil {
		return err
	}
	defer unlock()

	return c.Run(ctx)
}
