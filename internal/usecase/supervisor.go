package usecase

import (
	"context"
	"log/slog"
	"sync"

	"OpportunityScout/internal/scanner"
)

// DaemonFactory builds a fresh, unscheduled daemon.
type DaemonFactory func() *Daemon

// Supervisor owns the current daemon. A stopped daemon cannot be restarted,
// so Restart stops the running one and schedules a new instance, which picks
// up configuration changes made since the last start.
type Supervisor struct {
	factory DaemonFactory
	scanner scanner.Scanner
	opts    DaemonOptions
	logger  *slog.Logger

	mu     sync.Mutex
	daemon *Daemon
	handle *Handle
}

// NewSupervisor wires a supervisor; nothing is scheduled until Start.
func NewSupervisor(factory DaemonFactory, sc scanner.Scanner, opts DaemonOptions, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{factory: factory, scanner: sc, opts: opts, logger: logger}
}

// Start schedules the first daemon. Calling it again behaves like Restart.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.Restart(ctx)
}

// Restart stops the current daemon, waits for its in-flight cycles and
// schedules a replacement.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	d := s.factory()
	h, err := d.Start(ctx, s.scanner, s.opts)
	if err != nil {
		return err
	}
	s.daemon, s.handle = d, h
	s.logger.Info("scout daemon started", "scheduled", d.Scheduled())
	return nil
}

// Stop halts the current daemon and waits for its cycles to drain.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Scheduled reports how many configurations the current daemon runs.
func (s *Supervisor) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daemon == nil {
		return 0
	}
	return s.daemon.Scheduled()
}

func (s *Supervisor) stopLocked() {
	if s.daemon == nil {
		return
	}
	s.handle.Stop()
	s.daemon.Wait()
	s.daemon, s.handle = nil, nil
}
