package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
	"OpportunityScout/internal/scanner"
)

// EngineDeps wires the stores and policy knobs into the scan-cycle engine.
type EngineDeps struct {
	Configs          ports.ConfigRepository
	Queue            ports.QueueRepository
	Notifier         ports.Notifier
	FeeRate          float64
	DefaultPlatforms []string
	Logger           *slog.Logger
	Now              func() time.Time
}

// Engine performs one scan-filter-score-queue pass for a configuration.
type Engine struct {
	configs          ports.ConfigRepository
	queue            ports.QueueRepository
	notifier         ports.Notifier
	feeRate          float64
	defaultPlatforms []string
	logger           *slog.Logger
	now              func() time.Time
}

// NewEngine constructs the scan-cycle engine.
func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		configs:          deps.Configs,
		queue:            deps.Queue,
		notifier:         deps.Notifier,
		feeRate:          deps.FeeRate,
		defaultPlatforms: deps.DefaultPlatforms,
		logger:           deps.Logger,
		now:              deps.Now,
	}
	if e.feeRate <= 0 || e.feeRate >= 1 {
		e.feeRate = domain.DefaultFeeRate
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// RunCycle scans every platform×keyword pair of cfg. Scanner failures are
// logged and skipped; only a failed queue insert aborts the cycle.
func (e *Engine) RunCycle(ctx context.Context, cfg domain.ScoutConfig, sc scanner.Scanner) (domain.CycleResult, error) {
	var (
		result domain.CycleResult
		queued []domain.ScoutQueueItem
	)
	log := e.logger.With("config_id", cfg.ID, "config", cfg.Name)

	for _, platform := range cfg.EffectivePlatforms(e.defaultPlatforms) {
		for _, keyword := range cfg.EffectiveKeywords() {
			products, err := e.scan(ctx, sc, platform, keyword, cfg.MaxResults)
			if err != nil {
				result.ScanErrors++
				log.Warn("scan failed, continuing", "platform", platform, "keyword", keyword, "error", err)
				continue
			}

			for _, product := range products {
				result.Scanned++

				item, ok := e.qualify(cfg, platform, product)
				if !ok {
					result.Skipped++
					continue
				}
				result.Qualified++

				if product.URL != "" {
					dup, err := e.queue.ExistsPendingDuplicate(ctx, product.URL, item.SourcePlatform, cfg.ID)
					if err != nil {
						log.Warn("duplicate check failed, treating as new", "url", product.URL, "error", err)
					}
					if dup {
						result.Skipped++
						continue
					}
				}

				inserted, err := e.queue.Insert(ctx, item)
				if err != nil {
					return result, fmt.Errorf("queue %q for config %s: %w", product.Name, cfg.ID, err)
				}
				if !inserted {
					result.Skipped++
					continue
				}
				result.Queued++
				queued = append(queued, item)
			}
		}
	}

	if err := e.configs.RecordRun(ctx, cfg.ID, e.now(), result.Queued); err != nil {
		log.Warn("record run failed", "error", err)
	}

	log.Info("scout cycle complete",
		"scanned", result.Scanned,
		"qualified", result.Qualified,
		"queued", result.Queued,
		"skipped", result.Skipped,
		"scan_errors", result.ScanErrors)

	if len(queued) > 0 && e.notifier != nil {
		if err := e.notifier.NotifyQueued(ctx, cfg, queued); err != nil {
			log.Warn("notify queued opportunities failed", "error", err)
		}
	}

	return result, nil
}

// scan shields the cycle from scanners that panic.
func (e *Engine) scan(ctx context.Context, sc scanner.Scanner, platform, keyword string, maxResults int) (products []domain.Product, err error) {
	if sc == nil {
		return nil, fmt.Errorf("no scanner configured")
	}
	defer func() {
		if r := recover(); r != nil {
			products, err = nil, fmt.Errorf("scanner panic: %v", r)
		}
	}()
	return sc.Scan(ctx, platform, keyword, maxResults)
}

// qualify applies the filter pipeline in order: price band, brand, category,
// margin. It returns the scored queue item when every filter passes.
func (e *Engine) qualify(cfg domain.ScoutConfig, platform string, p domain.Product) (domain.ScoutQueueItem, bool) {
	if !domain.ValidPrice(p.Price) || p.Price < cfg.MinSourcePrice || p.Price > cfg.MaxSourcePrice {
		return domain.ScoutQueueItem{}, false
	}
	if cfg.ExcludesBrand(p.Brand) {
		return domain.ScoutQueueItem{}, false
	}
	if cfg.ExcludesCategory(p.Category) {
		return domain.ScoutQueueItem{}, false
	}

	estimate := domain.EstimateMargin(p.Price, cfg.MinMarginPct, e.feeRate)
	if !estimate.MeetsThreshold(cfg.MinMarginPct) {
		return domain.ScoutQueueItem{}, false
	}
	estimate = estimate.Rounded()

	sourcePlatform := p.Platform
	if sourcePlatform == "" {
		sourcePlatform = platform
	}

	status := domain.InitialStatus(cfg.AutoList)
	now := e.now()
	item := domain.ScoutQueueItem{
		ID:                 uuid.NewString(),
		ConfigID:           cfg.ID,
		SourcePlatform:     sourcePlatform,
		TargetPlatform:     cfg.TargetPlatform,
		SourcePrice:        p.Price,
		TargetPrice:        estimate.TargetPrice,
		EstimatedMarginPct: estimate.MarginPct,
		EstimatedProfit:    estimate.Profit,
		ProductID:          p.ProductID,
		ProductName:        p.Name,
		ProductURL:         p.URL,
		ImageURL:           p.ImageURL,
		Category:           p.Category,
		Brand:              p.Brand,
		Status:             status,
		CreatedAt:          now,
	}
	if status == domain.StatusApproved {
		item.ReviewedAt = &now
	}
	return item, true
}
