package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

// DefaultChannel carries one event per newly queued opportunity.
const DefaultChannel = "scout.opportunity.queued"

const eventType = "EVENT_OPPORTUNITY_QUEUED"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans queued opportunities out over Redis pub/sub.
type RedisPublisher struct {
	rdb     publisher
	channel string
	logger  *slog.Logger
}

var _ ports.Notifier = (*RedisPublisher)(nil)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisPublisher publishes on channel, or DefaultChannel when empty.
func NewRedisPublisher(rdb *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return newPublisher(rdb, channel, logger)
}

func newPublisher(rdb publisher, channel string, logger *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

// QueuedEvent is the JSON payload published per item.
type QueuedEvent struct {
	Type               string  `json:"type"`
	ItemID             string  `json:"itemId"`
	ConfigID           string  `json:"configId"`
	ConfigName         string  `json:"configName"`
	Status             string  `json:"status"`
	SourcePlatform     string  `json:"sourcePlatform"`
	TargetPlatform     string  `json:"targetPlatform"`
	ProductName        string  `json:"productName"`
	ProductURL         string  `json:"productUrl,omitempty"`
	SourcePrice        float64 `json:"sourcePrice"`
	TargetPrice        float64 `json:"targetPrice"`
	EstimatedMarginPct float64 `json:"estimatedMarginPct"`
	EstimatedProfit    float64 `json:"estimatedProfit"`
	CreatedAt          int64   `json:"createdAt"`
}

// NewQueuedEvent builds the payload for one queued item.
func NewQueuedEvent(cfg domain.ScoutConfig, it domain.ScoutQueueItem) QueuedEvent {
	return QueuedEvent{
		Type:               eventType,
		ItemID:             it.ID,
		ConfigID:           it.ConfigID,
		ConfigName:         cfg.Name,
		Status:             string(it.Status),
		SourcePlatform:     it.SourcePlatform,
		TargetPlatform:     it.TargetPlatform,
		ProductName:        it.ProductName,
		ProductURL:         it.ProductURL,
		SourcePrice:        it.SourcePrice,
		TargetPrice:        it.TargetPrice,
		EstimatedMarginPct: it.EstimatedMarginPct,
		EstimatedProfit:    it.EstimatedProfit,
		CreatedAt:          it.CreatedAt.UnixMilli(),
	}
}

// NotifyQueued publishes every item; failures are collected, not fatal.
func (p *RedisPublisher) NotifyQueued(ctx context.Context, cfg domain.ScoutConfig, items []domain.ScoutQueueItem) error {
	var errs []error
	for _, it := range items {
		payload, err := json.Marshal(NewQueuedEvent(cfg, it))
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %s: %w", it.ID, err))
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = p.rdb.Publish(pubCtx, p.channel, payload).Err()
		cancel()
		if err != nil {
			p.logger.Warn("publish queued event failed", "item_id", it.ID, "err", err)
			errs = append(errs, fmt.Errorf("publish %s: %w", it.ID, err))
		}
	}
	return errors.Join(errs...)
}
