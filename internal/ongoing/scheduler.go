package ongoing

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// PollFunc is one scheduled poll.
type PollFunc func(ctx context.Context) (Stats, error)

// Scheduler runs a poll on a fixed interval.
type Scheduler struct {
	poll     PollFunc
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler returns a scheduler that calls poll every interval.
func NewScheduler(poll PollFunc, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{poll: poll, interval: interval, clock: clock, logger: logger}
}

// Start begins the loop in the background. Stop ends it.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		// Run immediately on start, then on each tick.
		s.tick()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.Chan():
				s.tick()
			}
		}
	}()
}

// Stop signals the loop to stop and waits for an in-flight poll.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

func (s *Scheduler) tick() {
	st, err := s.poll(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("scheduled poll failed", zap.Error(err))
		}
		return
	}
	s.logger.Debug("scheduled poll done", zap.Int("checked", st.Checked), zap.Int("errors", st.Errors))
}
