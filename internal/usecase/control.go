package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
	"OpportunityScout/internal/scanner"
)

// ControlDeps wires the control surface.
type ControlDeps struct {
	Configs ports.ConfigRepository
	Queue   ports.QueueRepository
	Engine  CycleRunner
	Scanner scanner.Scanner
	Stats   *StatsService
	Logger  *slog.Logger
}

// ControlService is the operator surface over configurations, the queue and
// stats. Missing records surface as domain.ErrNotFound.
type ControlService struct {
	configs ports.ConfigRepository
	queue   ports.QueueRepository
	engine  CycleRunner
	scanner scanner.Scanner
	stats   *StatsService
	logger  *slog.Logger
}

// NewControlService constructs the control surface.
func NewControlService(deps ControlDeps) *ControlService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlService{
		configs: deps.Configs,
		queue:   deps.Queue,
		engine:  deps.Engine,
		scanner: deps.Scanner,
		stats:   deps.Stats,
		logger:  logger,
	}
}

func (s *ControlService) CreateConfig(ctx context.Context, name string, patch domain.ScoutConfigPatch) (domain.ScoutConfig, error) {
	cfg, err := s.configs.Create(ctx, name, patch)
	if err != nil {
		return domain.ScoutConfig{}, err
	}
	s.logger.Info("scout config created", "config_id", cfg.ID, "config", cfg.Name)
	return cfg, nil
}

func (s *ControlService) UpdateConfig(ctx context.Context, id string, patch domain.ScoutConfigPatch) (domain.ScoutConfig, error) {
	cfg, err := s.configs.Update(ctx, id, patch)
	if err != nil {
		return domain.ScoutConfig{}, err
	}
	if cfg == nil {
		return domain.ScoutConfig{}, fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	return *cfg, nil
}

func (s *ControlService) GetConfig(ctx context.Context, id string) (domain.ScoutConfig, error) {
	cfg, err := s.configs.Get(ctx, id)
	if err != nil {
		return domain.ScoutConfig{}, err
	}
	if cfg == nil {
		return domain.ScoutConfig{}, fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	return *cfg, nil
}

func (s *ControlService) ListConfigs(ctx context.Context) ([]domain.ScoutConfig, error) {
	return s.configs.List(ctx)
}

// DeleteConfig soft-deletes: the configuration is disabled and its queue kept.
func (s *ControlService) DeleteConfig(ctx context.Context, id string) error {
	ok, err := s.configs.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("config %s: %w", id, domain.ErrNotFound)
	}
	s.logger.Info("scout config disabled", "config_id", id)
	return nil
}

// RunConfig runs one cycle immediately, outside the daemon's schedule.
// Disabled configurations may still be run by hand.
func (s *ControlService) RunConfig(ctx context.Context, id string) (domain.CycleResult, error) {
	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return domain.CycleResult{}, err
	}
	return s.engine.RunCycle(ctx, cfg, s.scanner)
}

func (s *ControlService) ListQueue(ctx context.Context, filter domain.QueueFilter) ([]domain.ScoutQueueItem, error) {
	return s.queue.List(ctx, filter)
}

func (s *ControlService) GetItem(ctx context.Context, id string) (domain.ScoutQueueItem, error) {
	item, err := s.queue.Get(ctx, id)
	if err != nil {
		return domain.ScoutQueueItem{}, err
	}
	if item == nil {
		return domain.ScoutQueueItem{}, fmt.Errorf("queue item %s: %w", id, domain.ErrNotFound)
	}
	return *item, nil
}

func (s *ControlService) ApproveItem(ctx context.Context, id string) (domain.ScoutQueueItem, error) {
	return s.review(ctx, id, "approve", s.queue.Approve)
}

func (s *ControlService) RejectItem(ctx context.Context, id string) (domain.ScoutQueueItem, error) {
	return s.review(ctx, id, "reject", s.queue.Reject)
}

// MarkListed records the marketplace listing id for an approved item.
func (s *ControlService) MarkListed(ctx context.Context, id, listingID string) (domain.ScoutQueueItem, error) {
	return s.review(ctx, id, "list", func(ctx context.Context, id string) (bool, error) {
		return s.queue.MarkListed(ctx, id, listingID)
	})
}

// review applies a conditional transition and tells a missing item apart from
// one in the wrong state.
func (s *ControlService) review(ctx context.Context, id, action string, apply func(context.Context, string) (bool, error)) (domain.ScoutQueueItem, error) {
	ok, err := apply(ctx, id)
	if err != nil {
		return domain.ScoutQueueItem{}, err
	}
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return domain.ScoutQueueItem{}, err
	}
	if !ok {
		return item, fmt.Errorf("%s item %s in status %s: %w", action, id, item.Status, domain.ErrInvalidTransition)
	}
	s.logger.Info("queue item updated", "item_id", id, "action", action, "status", item.Status)
	return item, nil
}

// ExpireQueue expires pending items older than maxAgeDays.
func (s *ControlService) ExpireQueue(ctx context.Context, maxAgeDays int) (int64, error) {
	n, err := s.queue.ExpireOlderThan(ctx, maxAgeDays)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale queue items", "count", n, "max_age_days", maxAgeDays)
	}
	return n, nil
}

func (s *ControlService) Stats(ctx context.Context, configID string) (domain.Stats, error) {
	return s.stats.GetStats(ctx, configID)
}
