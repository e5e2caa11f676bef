package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

var ErrSchedulerRunning = errors.New("finalizer scheduler already running")

// Sweeper is the periodic work run by FinalizerScheduler.
type Sweeper interface {
	Sweep(ctx context.Context) SweepResult
}

// FinalizerScheduler runs the finalizer sweep once at Start and then on a
// fixed interval. Overlapping runs are skipped. When a LeaderElection is
// set only the elected instance sweeps.
type FinalizerScheduler struct {
	sweeper    Sweeper
	leader     domain.LeaderElection
	instanceID string
	interval   time.Duration
	log        logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewFinalizerScheduler(
	sweeper Sweeper,
	leader domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) *FinalizerScheduler {
	return &FinalizerScheduler{
		sweeper:    sweeper,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		log:        log,
	}
}

func (s *FinalizerScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrSchedulerRunning
	}

	s.log.Info("Starting finalizer scheduler", "interval", s.interval)

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cronLogger{log: s.log}
	job := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(func() { s.runOnce(runCtx) }))

	c := cron.New(cron.WithLogger(cronLog))
	c.Schedule(cron.Every(s.interval), job)

	// first sweep happens before Start returns
	job.Run()

	c.Start()
	s.cron = c
	s.cancel = cancel
	return nil
}

// Stop cancels the schedule and waits for a running sweep to return.
// Stopping a stopped scheduler is a no-op.
func (s *FinalizerScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	s.log.Info("Stopping finalizer scheduler")
	s.cancel()
	<-s.cron.Stop().Done()

	s.cron = nil
	s.cancel = nil
	return nil
}

func (s *FinalizerScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *FinalizerScheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.leader != nil {
		leading, err := s.acquireLeadership(ctx)
		if err != nil {
			s.log.Error("Leader check failed, skipping sweep", "error", err)
			return
		}
		if !leading {
			s.log.Debug("Not the leader, skipping sweep", "instance_id", s.instanceID)
			return
		}
	}

	s.sweeper.Sweep(ctx)
}

func (s *FinalizerScheduler) acquireLeadership(ctx context.Context) (bool, error) {
	leading, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil || leading {
		return leading, err
	}
	return s.leader.BecomeLeader(ctx, s.instanceID)
}

// cronLogger routes robfig/cron's logging through our logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
