package ports

import (
	"context"
	"time"

	"OpportunityScout/internal/domain"
)

// ConfigRepository persists scout configurations and their run counters.
type ConfigRepository interface {
	Create(ctx context.Context, name string, patch domain.ScoutConfigPatch) (domain.ScoutConfig, error)
	Update(ctx context.Context, id string, patch domain.ScoutConfigPatch) (*domain.ScoutConfig, error)
	Get(ctx context.Context, id string) (*domain.ScoutConfig, error)
	List(ctx context.Context) ([]domain.ScoutConfig, error)
	ListEnabled(ctx context.Context) ([]domain.ScoutConfig, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	RecordRun(ctx context.Context, id string, at time.Time, queued int) error
}

// QueueRepository persists candidate opportunities and their review lifecycle.
type QueueRepository interface {
	Insert(ctx context.Context, item domain.ScoutQueueItem) (bool, error)
	Get(ctx context.Context, id string) (*domain.ScoutQueueItem, error)
	List(ctx context.Context, filter domain.QueueFilter) ([]domain.ScoutQueueItem, error)
	Approve(ctx context.Context, id string) (bool, error)
	Reject(ctx context.Context, id string) (bool, error)
	MarkListed(ctx context.Context, id, listingID string) (bool, error)
	ExpireOlderThan(ctx context.Context, maxAgeDays int) (int64, error)
	ExistsPendingDuplicate(ctx context.Context, url, sourcePlatform, configID string) (bool, error)
}

// StatsReader computes rollups over both stores.
type StatsReader interface {
	Stats(ctx context.Context, configID string, since time.Time) (domain.Stats, error)
}

// Notifier fans newly queued opportunities out to humans or other services.
type Notifier interface {
	NotifyQueued(ctx context.Context, cfg domain.ScoutConfig, items []domain.ScoutQueueItem) error
}

// Timers drives periodic jobs. Every registers job on a constant period and
// returns a cancel func; Stop halts every registered job.
type Timers interface {
	Every(interval time.Duration, job func()) (cancel func(), err error)
	Stop()
}
