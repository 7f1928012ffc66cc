package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"OpportunityScout/internal/ports"
)

// CronTimers runs periodic jobs on a single robfig/cron instance. Panicking
// jobs are recovered and logged by the cron chain.
type CronTimers struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

var _ ports.Timers = (*CronTimers)(nil)

// NewCronTimers builds an idle cron; it starts on the first registration.
func NewCronTimers(logger *slog.Logger) *CronTimers {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cron")
	adapter := cronLogger{logger: logger}
	return &CronTimers{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		logger: logger,
	}
}

// Every schedules job on a constant period. Sub-second periods round up to one
// second.
func (c *CronTimers) Every(interval time.Duration, job func()) (func(), error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	id := c.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	c.ensureStarted()
	return func() { c.cron.Remove(id) }, nil
}

// AddSpec schedules job with a standard cron expression or descriptor such as
// "@daily".
func (c *CronTimers) AddSpec(spec string, job func()) (func(), error) {
	id, err := c.cron.AddFunc(spec, job)
	if err != nil {
		return nil, fmt.Errorf("cron.AddFunc %q: %w", spec, err)
	}
	c.ensureStarted()
	return func() { c.cron.Remove(id) }, nil
}

// Entries reports how many jobs are registered.
func (c *CronTimers) Entries() int {
	return len(c.cron.Entries())
}

// Stop halts the cron and waits for running jobs to return.
func (c *CronTimers) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	<-c.cron.Stop().Done()
	c.started = false
	c.logger.Info("cron stopped")
}

func (c *CronTimers) ensureStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.cron.Start()
	c.started = true
	c.logger.Info("cron started")
}

// cronLogger routes cron's logr-style calls into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
