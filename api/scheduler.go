/*
scheduler.go - Background expiration sweep

PURPOSE:
  Runs the credit expiration sweep on an interval so batches past their
  validity are forfeited without an operator having to remember to call
  the admin endpoint. Each pass also re-runs the recovery scan, which is
  cheap on a clean store and mops up anything a crashed writer left.

DESIGN:
  - One goroutine, ticker driven
  - First pass fires immediately on Start
  - Per-employee locks inside ExpireSweep keep passes safe to overlap
    with live traffic (a held lock defers that batch to the next pass)

CONFIGURATION:
  - Interval: how often to sweep (default: 1 hour)
  - Enabled:  whether the scheduler runs at all (default: true)

SEE ALSO:
  - handlers.go: ExpireSweep endpoint (manual trigger, same code path)
  - coc/credits.go: the sweep itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/govhr/coc-engine/coc"
)

// SweepScheduler drives periodic credit expiration.
type SweepScheduler struct {
	Engine   *coc.Engine
	Log      zerolog.Logger
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweepScheduler(engine *coc.Engine, log zerolog.Logger) *SweepScheduler {
	return &SweepScheduler{
		Engine:   engine,
		Log:      log,
		Interval: time.Hour,
		Enabled:  true,
		stop:     make(chan struct{}),
	}
}

func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info().Msg("sweep scheduler disabled")
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()
	s.Log.Info().Dur("interval", s.Interval).Msg("sweep scheduler started")
}

func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info().Msg("sweep scheduler stopped")
	}
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	s.pass()
	for {
		select {
		case <-s.ticker.C:
			s.pass()
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate pass (admin/testing).
func (s *SweepScheduler) RunNow() { s.pass() }

func (s *SweepScheduler) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	recovered, err := s.Engine.Recover(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduled recovery scan failed")
	} else if recovered != (coc.RecoveryReport{}) {
		s.Log.Warn().
			Int("intentsRolledBack", recovered.IntentsRolledBack).
			Int("logsReverted", recovered.LogsReverted).
			Int("locksDropped", recovered.LocksDropped).
			Msg("scheduled recovery repaired state")
	}

	settings, err := s.Engine.Config().Load(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduled sweep could not load settings")
		return
	}
	today := coc.DateOf(time.Now(), settings.Location)

	result, err := s.Engine.ExpireSweep(ctx, today, "scheduler")
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	if result.BatchesExpired > 0 {
		s.Log.Info().
			Int("batches", result.BatchesExpired).
			Str("hoursForfeited", result.HoursForfeited.String()).
			Msg("scheduled sweep expired batches")
	}
}
