package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moyeora/group-order/internal/repository"
)

// Sweeper periodically closes recruiting meetings whose deadline has
// passed.  The sweep is one conditional UPDATE evaluated in the
// database, so any number of sweeper instances can run concurrently:
// a meeting is closed at most once, and a leader's ProcessOrder
// holding the row lock always serializes against the sweep.
type Sweeper struct {
	meetings *repository.MeetingRepo
	interval time.Duration
	log      *logrus.Logger
}

// NewSweeper constructs a Sweeper.  interval must be positive.
func NewSweeper(meetings *repository.MeetingRepo, interval time.Duration, log *logrus.Logger) *Sweeper {
	if meetings == nil || log == nil {
		panic("nil dependency passed to NewSweeper")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{meetings: meetings, interval: interval, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is
// cancelled.  Sweep errors are logged and the loop keeps going; a
// transient database outage must not kill the process.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("deadline sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	affected, err := s.meetings.CloseExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("deadline sweep failed")
		return
	}
	if affected > 0 {
		s.log.WithField("closed", affected).Info("expired meetings closed")
	}
}
