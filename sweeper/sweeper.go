// Package sweeper runs the background hold-expiry sweep on a fixed
// interval, adapted from modules/scheduler's robfig/cron/v3-backed
// scheduling loop (its cron.Cron + cron.EntryID bookkeeping), narrowed from
// a general job scheduler down to a single recurring task with no job
// store, retries, or backfill policy: the sweep is a liveness optimization,
// not a durable job (spec.md §4.4).
package sweeper

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/tapfederation/tap"
)

// Sweeper periodically calls an expiry function using a robfig/cron
// schedule expressed as "@every <interval>".
type Sweeper struct {
	cron   *cron.Cron
	expire func(ctx context.Context) error
	logger tap.Logger
}

// New constructs a Sweeper that invokes expire on the schedule later
// passed to Start.
func New(logger tap.Logger, expire func(ctx context.Context) error) *Sweeper {
	if logger == nil {
		logger = tap.NopLogger{}
	}
	return &Sweeper{
		cron:   cron.New(),
		expire: expire,
		logger: logger,
	}
}

// Start schedules the sweep at spec (e.g. "@every 5s") and starts the
// underlying cron runner. ctx cancellation stops future sweep invocations
// from doing work, but does not itself stop the cron runner; call Stop for
// that.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.expire(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
