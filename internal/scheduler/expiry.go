package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/pkg/jobs"
)

const expiryJobType = "subscription_expiry"

// Expirer materializes EXPIRED for subscriptions past their period.
type Expirer interface {
	ExpireSubscriptions(ctx context.Context) (int, error)
}

// ExpirySweeper triggers the subscription expiry sweep on a cron schedule. Runs go through a
// single-worker queue so two sweeps never overlap.
type ExpirySweeper struct {
	cron    *cron.Cron
	queue   *jobs.Queue
	expirer Expirer
	timeout time.Duration
	logger  *zap.Logger
}

// NewExpirySweeper validates spec (standard five-field cron, UTC) and wires the sweep.
func NewExpirySweeper(spec string, expirer Expirer, timeout time.Duration, logger *zap.Logger) (*ExpirySweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s := &ExpirySweeper{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		expirer: expirer,
		timeout: timeout,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("expiry", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 2,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	if _, err := s.cron.AddFunc(spec, s.Trigger); err != nil {
		return nil, fmt.Errorf("parse expiry schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the queue worker and the cron scheduler.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.queue.Start(ctx)
	s.cron.Start()
	s.logger.Info("subscription expiry sweep scheduled", zap.Time("next_run", s.next()))
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *ExpirySweeper) Stop() {
	<-s.cron.Stop().Done()
	s.queue.Stop()
}

// Trigger requests a sweep. It is dropped when one is already queued.
func (s *ExpirySweeper) Trigger() {
	if !s.queue.Offer(jobs.Job{ID: uuid.NewString(), Type: expiryJobType}) {
		s.logger.Debug("expiry sweep already pending")
	}
}

func (s *ExpirySweeper) handle(ctx context.Context, job jobs.Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	count, err := s.expirer.ExpireSubscriptions(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("subscription expiry sweep finished",
		zap.String("job_id", job.ID),
		zap.Int("expired", count),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *ExpirySweeper) next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
