package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/infrastructure/storage"
	"OpportunityScout/internal/scanner"
)

type stores struct {
	configs *storage.ConfigRepository
	queue   *storage.QueueRepository
	stats   *storage.StatsRepository
}

func newStores(t *testing.T) stores {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return stores{
		configs: storage.NewConfigRepository(db, quietLogger()),
		queue:   storage.NewQueueRepository(db),
		stats:   storage.NewStatsRepository(db),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(s stores, n *recordingNotifier) *Engine {
	deps := EngineDeps{
		Configs: s.configs,
		Queue:   s.queue,
		Logger:  quietLogger(),
	}
	if n != nil {
		deps.Notifier = n
	}
	return NewEngine(deps)
}

func createConfig(t *testing.T, s stores, patch domain.ScoutConfigPatch) domain.ScoutConfig {
	t.Helper()
	if patch.Platforms == nil {
		p := []string{"amazon"}
		patch.Platforms = &p
	}
	if patch.Keywords == nil {
		k := []string{"lego"}
		patch.Keywords = &k
	}
	cfg, err := s.configs.Create(context.Background(), "test", patch)
	if err != nil {
		t.Fatalf("create config: %v", err)
	}
	return cfg
}

func fixedScanner(products ...domain.Product) scanner.Scanner {
	return scanner.Func(func(context.Context, string, string, int) ([]domain.Product, error) {
		out := make([]domain.Product, len(products))
		copy(out, products)
		return out, nil
	})
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]domain.ScoutQueueItem
}

func (n *recordingNotifier) NotifyQueued(_ context.Context, _ domain.ScoutConfig, items []domain.ScoutQueueItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, items)
	return nil
}

func TestRunCycleQueuesQualifiedProduct(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	notifier := &recordingNotifier{}
	engine := newTestEngine(s, notifier)
	cfg := createConfig(t, s, domain.ScoutConfigPatch{})
	ctx := context.Background()

	res, err := engine.RunCycle(ctx, cfg, fixedScanner(domain.Product{
		ProductID: "p1", Name: "Lego Set", Price: 20, URL: "https://amazon.test/p1",
	}))
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	want := domain.CycleResult{Scanned: 1, Qualified: 1, Queued: 1}
	if res != want {
		t.Fatalf("unexpected result %+v", res)
	}

	items, err := s.queue.List(ctx, domain.QueueFilter{ConfigID: cfg.ID})
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	item := items[0]
	if item.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}
	if item.SourcePlatform != "amazon" || item.TargetPlatform != "ebay" {
		t.Fatalf("unexpected platforms %s -> %s", item.SourcePlatform, item.TargetPlatform)
	}
	if item.TargetPrice != 28.24 || item.EstimatedProfit != 4 || item.EstimatedMarginPct != 20 {
		t.Fatalf("unexpected estimate %+v", item)
	}

	got, err := s.configs.Get(ctx, cfg.ID)
	if err != nil || got == nil {
		t.Fatalf("get config: %v", err)
	}
	if got.TotalRuns != 1 || got.TotalOpportunitiesFound != 1 || got.LastRunAt == nil {
		t.Fatalf("run counters not recorded: %+v", got)
	}
	if len(notifier.batches) != 1 || len(notifier.batches[0]) != 1 {
		t.Fatalf("expected one notified batch, got %v", notifier.batches)
	}
}

func TestRunCycleSkipsOutOfBandPrice(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	notifier := &recordingNotifier{}
	engine := newTestEngine(s, notifier)
	cfg := createConfig(t, s, domain.ScoutConfigPatch{})

	res, err := engine.RunCycle(context.Background(), cfg, fixedScanner(domain.Product{Name: "Cheap", Price: 3}))
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	want := domain.CycleResult{Scanned: 1, Skipped: 1}
	if res != want {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(notifier.batches) != 0 {
		t.Fatal("nothing queued, nothing notified")
	}
}

func TestRunCycleFilters(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := newTestEngine(s, nil)
	brands := []string{"Acme"}
	cats := []string{"Toys"}
	cfg := createConfig(t, s, domain.ScoutConfigPatch{ExcludeBrands: &brands, ExcludeCategories: &cats})

	res, err := engine.RunCycle(context.Background(), cfg, fixedScanner(
		domain.Product{Name: "branded", Price: 20, Brand: "acme"},
		domain.Product{Name: "toy", Price: 20, Category: "TOYS"},
		domain.Product{Name: "pricey", Price: 150},
		domain.Product{Name: "bad", Price: math.NaN()},
		domain.Product{Name: "ok", Price: 50},
	))
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if res.Scanned != 5 || res.Skipped != 4 || res.Queued != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCycleAutoListInsertsApproved(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := newTestEngine(s, nil)
	auto := true
	cfg := createConfig(t, s, domain.ScoutConfigPatch{AutoList: &auto})
	ctx := context.Background()

	if _, err := engine.RunCycle(ctx, cfg, fixedScanner(domain.Product{Name: "x", Price: 20, URL: "u"})); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	items, _ := s.queue.List(ctx, domain.QueueFilter{})
	if len(items) != 1 || items[0].Status != domain.StatusApproved || items[0].ReviewedAt == nil {
		t.Fatalf("expected one approved item, got %+v", items)
	}
}

func TestRunCycleIsolatesScannerFailures(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := newTestEngine(s, nil)
	platforms := []string{"amazon", "walmart", "target"}
	cfg := createConfig(t, s, domain.ScoutConfigPatch{Platforms: &platforms})

	sc := scanner.Func(func(_ context.Context, platform, _ string, _ int) ([]domain.Product, error) {
		switch platform {
		case "amazon":
			return nil, errors.New("rate limited")
		case "walmart":
			panic("boom")
		}
		return []domain.Product{{Name: "good", Price: 20, URL: "https://target.test/1"}}, nil
	})

	res, err := engine.RunCycle(context.Background(), cfg, sc)
	if err != nil {
		t.Fatalf("scanner failures must not fail the cycle: %v", err)
	}
	if res.ScanErrors != 2 || res.Queued != 1 || res.Scanned != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCycleDeduplicatesAcrossCycles(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := newTestEngine(s, nil)
	cfg := createConfig(t, s, domain.ScoutConfigPatch{})
	ctx := context.Background()
	sc := fixedScanner(domain.Product{Name: "dup", Price: 20, URL: "https://amazon.test/dup"})

	first, err := engine.RunCycle(ctx, cfg, sc)
	if err != nil || first.Queued != 1 {
		t.Fatalf("first cycle: %+v %v", first, err)
	}
	second, err := engine.RunCycle(ctx, cfg, sc)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if second.Queued != 0 || second.Skipped != 1 || second.Qualified != 1 {
		t.Fatalf("duplicate must be skipped: %+v", second)
	}

	items, _ := s.queue.List(ctx, domain.QueueFilter{})
	if len(items) != 1 {
		t.Fatalf("expected one stored item, got %d", len(items))
	}
	got, _ := s.configs.Get(ctx, cfg.ID)
	if got.TotalRuns != 2 || got.TotalOpportunitiesFound != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}
}

func TestRunCycleUsesFallbackPlatforms(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := NewEngine(EngineDeps{
		Configs:          s.configs,
		Queue:            s.queue,
		DefaultPlatforms: []string{"ebay-outlet"},
		Logger:           quietLogger(),
	})
	empty := []string{}
	cfg := createConfig(t, s, domain.ScoutConfigPatch{Platforms: &empty, Keywords: &empty})

	var seen []string
	sc := scanner.Func(func(_ context.Context, platform, keyword string, _ int) ([]domain.Product, error) {
		seen = append(seen, platform+"/"+keyword)
		return nil, nil
	})
	if _, err := engine.RunCycle(context.Background(), cfg, sc); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(seen) != 1 || seen[0] != "ebay-outlet/"+domain.DefaultKeyword {
		t.Fatalf("unexpected scans %v", seen)
	}
}

func TestQueuedItemsMeetMarginThreshold(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := NewEngine(EngineDeps{
		Configs: s.configs,
		Queue:   s.queue,
		Logger:  quietLogger(),
		Now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	margin := 35.0
	cfg := createConfig(t, s, domain.ScoutConfigPatch{MinMarginPct: &margin})

	var products []domain.Product
	for p := 5.0; p <= 100; p += 7.31 {
		products = append(products, domain.Product{Name: "p", Price: p})
	}
	res, err := engine.RunCycle(context.Background(), cfg, fixedScanner(products...))
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if res.Queued != len(products) {
		t.Fatalf("every in-band product qualifies at the solved price: %+v", res)
	}

	items, _ := s.queue.List(context.Background(), domain.QueueFilter{Limit: domain.MaxQueueLimit})
	for _, it := range items {
		if it.EstimatedMarginPct+0.01 < margin {
			t.Fatalf("margin %.2f below threshold for price %.2f", it.EstimatedMarginPct, it.SourcePrice)
		}
		if it.TargetPrice <= it.SourcePrice {
			t.Fatalf("target %.2f must exceed source %.2f", it.TargetPrice, it.SourcePrice)
		}
	}
}

func TestRunCycleConcurrentCyclesQueueOnce(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	engine := newTestEngine(s, nil)
	cfg := createConfig(t, s, domain.ScoutConfigPatch{})
	ctx := context.Background()
	sc := fixedScanner(domain.Product{Name: "race", Price: 20, URL: "https://amazon.test/race"})

	const cycles = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued int
		errs   []error
	)
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.RunCycle(ctx, cfg, sc)
			mu.Lock()
			defer mu.Unlock()
			queued += res.Queued
			if err != nil {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("cycles failed: %v", errs)
	}
	if queued != 1 {
		t.Fatalf("expected exactly one queued across cycles, got %d", queued)
	}
	pending, _ := s.queue.List(ctx, domain.QueueFilter{Status: domain.StatusPending})
	if len(pending) != 1 {
		t.Fatalf("expected one pending item, got %d", len(pending))
	}
	got, _ := s.configs.Get(ctx, cfg.ID)
	if got.TotalRuns != cycles || got.TotalOpportunitiesFound != 1 {
		t.Fatalf("unexpected counters runs=%d found=%d", got.TotalRuns, got.TotalOpportunitiesFound)
	}
}

// failingQueue lets every read through and fails inserts.
type failingQueue struct {
	*storage.QueueRepository
}

func (failingQueue) Insert(context.Context, domain.ScoutQueueItem) (bool, error) {
	return false, errors.New("disk full")
}

func TestRunCycleInsertFailureSkipsRecordRun(t *testing.T) {
	t.Parallel()

	s := newStores(t)
	notifier := &recordingNotifier{}
	engine := NewEngine(EngineDeps{
		Configs:  s.configs,
		Queue:    failingQueue{s.queue},
		Notifier: notifier,
		Logger:   quietLogger(),
	})
	cfg := createConfig(t, s, domain.ScoutConfigPatch{})
	ctx := context.Background()

	_, err := engine.RunCycle(ctx, cfg, fixedScanner(domain.Product{Name: "x", Price: 20, URL: "https://amazon.test/x"}))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("insert failure must be returned, got %v", err)
	}

	got, _ := s.configs.Get(ctx, cfg.ID)
	if got.TotalRuns != 0 || got.LastRunAt != nil {
		t.Fatalf("aborted cycle must not record a run: %+v", got)
	}
	if len(notifier.batches) != 0 {
		t.Fatal("aborted cycle must not notify")
	}
}
