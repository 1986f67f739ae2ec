package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic jobs on a cron schedule. Jobs are skipped, not
// queued, while a previous run of the same job is still in progress.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	cronLogger := slogCronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Every registers job to run at a fixed interval
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		start := time.Now()
		job(s.ctx)
		s.logger.Debug("scheduled job finished",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.logger.Info("scheduled job registered", slog.String("job", name), slog.Duration("interval", interval))
	return nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// slogCronLogger adapts slog to cron.Logger
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
