package infra

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"marketwatch/internal/service"
)

// AlertSweeper runs one price alert sweep
type AlertSweeper interface {
	Sweep(ctx context.Context) (*service.SweepReport, error)
}

// SchedulerConfig controls when sweeps run
type SchedulerConfig struct {
	Schedule     string // cron spec, e.g. "@hourly"
	InitialDelay time.Duration
	RetryDelay   time.Duration
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron    *cron.Cron
	sweeper AlertSweeper
	cfg     SchedulerConfig
	logger  *zap.Logger

	mu      sync.Mutex
	pending *time.Timer
	stopped bool
	runs    sync.WaitGroup // extra runs started by pending timers
}

// NewScheduler creates a new scheduler
func NewScheduler(sweeper AlertSweeper, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the periodic sweep and the initial delayed run
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler...",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("initial_delay", s.cfg.InitialDelay),
		zap.Duration("retry_delay", s.cfg.RetryDelay),
	)

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.logger.Info("[CRON] Price alert sweep triggered")
		s.run()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.after(s.cfg.InitialDelay)

	s.logger.Info("Scheduler started successfully")
	return nil
}

// Stop stops the scheduler and waits for running sweeps to finish, both
// cron and delayed ones
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")

	s.mu.Lock()
	s.stopped = true
	if s.pending != nil {
		s.pending.Stop()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.runs.Wait()
	s.logger.Info("Scheduler stopped")
}

// after schedules one extra run outside the cron cadence, replacing any
// extra run still pending
func (s *Scheduler) after(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(d, s.runPending)
}

func (s *Scheduler) runPending() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.runs.Add(1)
	s.mu.Unlock()

	defer s.runs.Done()
	s.run()
}

func (s *Scheduler) run() {
	ctx := context.Background()

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Scheduled alert sweep failed", zap.Error(err))
	}

	if err != nil || (report != nil && report.Outcome == service.SweepRetry) {
		s.logger.Warn("Alert sweep will be retried", zap.Duration("in", s.cfg.RetryDelay))
		s.after(s.cfg.RetryDelay)
	}
}
