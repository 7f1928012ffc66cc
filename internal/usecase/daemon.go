package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
	"OpportunityScout/internal/scanner"
)

var (
	// ErrDaemonStarted is returned by a second Start on the same daemon.
	ErrDaemonStarted = errors.New("scout daemon already started")
	// ErrDaemonStopped is returned by Start once the daemon has been stopped.
	ErrDaemonStopped = errors.New("scout daemon stopped; construct a new one")
)

// CycleRunner runs one scan cycle; *Engine satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context, cfg domain.ScoutConfig, sc scanner.Scanner) (domain.CycleResult, error)
}

// DaemonDeps wires the daemon's collaborators.
type DaemonDeps struct {
	Configs ports.ConfigRepository
	Engine  CycleRunner
	Timers  ports.Timers
	Logger  *slog.Logger
}

// DaemonOptions tunes a daemon run. A positive Interval replaces every
// configured interval.
type DaemonOptions struct {
	Interval time.Duration
}

type daemonState int

const (
	stateNotScheduled daemonState = iota
	stateScheduled
	stateStopped
)

// Handle stops a started daemon. Stop is idempotent and safe for concurrent use.
type Handle struct {
	once sync.Once
	stop func()
}

// Stop cancels every timer registered by the daemon.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
}

// Daemon owns one periodic timer per enabled configuration.
type Daemon struct {
	configs ports.ConfigRepository
	engine  CycleRunner
	timers  ports.Timers
	logger  *slog.Logger

	mu      sync.Mutex
	state   daemonState
	cancels map[string]func()
	detach  func() bool
	wg      sync.WaitGroup
}

// NewDaemon constructs an unscheduled daemon.
func NewDaemon(deps DaemonDeps) *Daemon {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		configs: deps.Configs,
		engine:  deps.Engine,
		timers:  deps.Timers,
		logger:  logger,
		cancels: map[string]func(){},
	}
}

// Start schedules every enabled configuration, firing one cycle per config
// immediately. With no enabled configurations the daemon idles and the
// returned handle is a no-op.
func (d *Daemon) Start(ctx context.Context, sc scanner.Scanner, opts DaemonOptions) (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateScheduled:
		return nil, ErrDaemonStarted
	case stateStopped:
		return nil, ErrDaemonStopped
	}
	if d.timers == nil || d.engine == nil || d.configs == nil {
		return nil, fmt.Errorf("scout daemon misconfigured")
	}

	configs, err := d.configs.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled configs: %w", err)
	}
	d.state = stateScheduled

	handle := &Handle{stop: d.stop}
	if len(configs) == 0 {
		d.logger.Info("no enabled scout configs, daemon idle")
		return handle, nil
	}

	for _, cfg := range configs {
		id := cfg.ID
		interval := domain.EffectiveInterval(cfg.IntervalMs, opts.Interval)
		guard := &atomic.Bool{}
		job := func() { d.tick(ctx, id, sc, guard) }

		cancel, err := d.timers.Every(interval, job)
		if err != nil {
			d.logger.Error("schedule scout config failed", "config_id", id, "error", err)
			continue
		}
		d.cancels[id] = cancel
		d.logger.Info("scout config scheduled", "config_id", id, "config", cfg.Name, "interval", interval)

		go job()
	}

	d.detach = context.AfterFunc(ctx, handle.Stop)
	return handle, nil
}

// Wait blocks until every cycle that was admitted before Stop has returned.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Scheduled reports how many configurations currently hold a timer.
func (d *Daemon) Scheduled() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cancels)
}

func (d *Daemon) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateStopped {
		return
	}
	d.state = stateStopped
	if d.detach != nil {
		d.detach()
		d.detach = nil
	}
	for id, cancel := range d.cancels {
		cancel()
		delete(d.cancels, id)
	}
	d.logger.Info("scout daemon stopped")
}

// tick re-reads the configuration and runs one cycle. Nothing escapes it: a
// failing or panicking cycle is logged and the timer keeps firing.
func (d *Daemon) tick(ctx context.Context, id string, sc scanner.Scanner, guard *atomic.Bool) {
	d.mu.Lock()
	if d.state == stateStopped {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	log := d.logger.With("config_id", id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("scout cycle panicked", "panic", r)
		}
	}()

	if !guard.CompareAndSwap(false, true) {
		log.Warn("previous cycle still running, skipping tick")
		return
	}
	defer guard.Store(false)

	cfg, err := d.configs.Get(ctx, id)
	if err != nil {
		log.Error("reload scout config failed", "error", err)
		return
	}
	if cfg == nil || !cfg.Enabled {
		log.Debug("scout config missing or disabled, skipping tick")
		return
	}

	if _, err := d.engine.RunCycle(ctx, *cfg, sc); err != nil {
		log.Error("scout cycle failed", "error", err)
	}
}
