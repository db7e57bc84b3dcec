package ingestion

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of scheduled work
type Job func(ctx context.Context)

// Scheduler runs jobs on cron specs. A job that is still running when its
// next tick arrives skips that tick.
type Scheduler struct {
	c      *cron.Cron
	ctx    context.Context
	logger *zap.Logger
}

// NewScheduler creates a scheduler whose jobs run with ctx
func NewScheduler(ctx context.Context, logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	cl := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		c:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		ctx:    ctx,
		logger: logger,
	}
}

// AddScheduledJob registers job on a cron spec such as "@every 1h"
func (s *Scheduler) AddScheduledJob(name string, job Job, schedule string) error {
	_, err := s.c.AddFunc(schedule, func() {
		s.run("Started scheduled job", "Completed scheduled job", name, job)
	})
	if err != nil {
		s.logger.Error("Failed to queue scheduled job", zap.String("job", name), zap.Error(err))
		return err
	}
	s.logger.Info("Queued scheduled job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// AddStartupJob runs job once after delay
func (s *Scheduler) AddStartupJob(name string, job Job, delay time.Duration) {
	go func() {
		if !sleep(s.ctx, delay) {
			return
		}
		s.run("Started startup job", "Completed startup job", name, job)
	}()
	s.logger.Info("Queued startup job", zap.String("job", name))
}

func (s *Scheduler) run(startMsg, doneMsg, name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}
	started := time.Now()
	s.logger.Info(startMsg, zap.String("job", name))
	job(s.ctx)
	s.logger.Info(doneMsg, zap.String("job", name), zap.Duration("took", time.Since(started)))
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop stops the schedule and waits for running jobs to return
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
