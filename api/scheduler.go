/*
scheduler.go - Automated year-end closing scheduler

PURPOSE:
  Periodically closes the balances of every leave year whose end date has
  passed. Runs once immediately on Start, then on every tick.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates to YearEndService.CloseEndedYears, which only closes OPEN
    balances: CLOSED and FINALIZED ones are left alone, and so are REOPENED
    ones until an operator closes them (POST /api/admin/years/{year}/close)
  - Opening the next year is left to an operator (POST /api/admin/years/{year}/open)
    so carry-over happens once the closing year's figures are final

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)

USAGE:
  scheduler := NewYearEndScheduler(handler.YearEnd, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseEndedYears endpoint (manual trigger)
  - leave/yearend.go: YearEndService
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// YearEndScheduler closes ended leave years in the background.
type YearEndScheduler struct {
	YearEnd  *leave.YearEndService
	Interval time.Duration
	Logger   *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewYearEndScheduler creates a scheduler checking hourly.
func NewYearEndScheduler(yearEnd *leave.YearEndService, logger *slog.Logger) *YearEndScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &YearEndScheduler{
		YearEnd:  yearEnd,
		Interval: time.Hour,
		Logger:   logger,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (s *YearEndScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	if s.Interval <= 0 {
		s.Interval = time.Hour
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info("year-end scheduler started", "interval", s.Interval.String())
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *YearEndScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("year-end scheduler stopped")
}

func (s *YearEndScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-stop:
			return
		}
	}
}

func (s *YearEndScheduler) runLogged(ctx context.Context) {
	closed, err := s.RunOnce(ctx)
	if err != nil {
		s.Logger.Error("year-end run failed", "error", err)
		return
	}
	s.Logger.Debug("year-end run complete", "years_closed", len(closed))
}

// RunOnce closes every year ended before now and reports balances closed per
// year.
func (s *YearEndScheduler) RunOnce(ctx context.Context) (map[int]int, error) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	return s.YearEnd.CloseEndedYears(ctx, now)
}
