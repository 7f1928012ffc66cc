package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"OpportunityScout/internal/domain"
)

type fakeRedis struct {
	channel  string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}
	return redis.NewIntResult(1, f.err)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyQueuedPublishesEachItem(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{}
	pub := newPublisher(fake, "", quietLogger())
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	items := []domain.ScoutQueueItem{
		{ID: "a", ConfigID: "cfg", Status: domain.StatusPending, ProductName: "Lego", SourcePrice: 20, TargetPrice: 28.24, CreatedAt: created},
		{ID: "b", ConfigID: "cfg", Status: domain.StatusApproved, ProductName: "Puzzle", CreatedAt: created},
	}

	if err := pub.NotifyQueued(context.Background(), domain.ScoutConfig{Name: "toys"}, items); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.channel != DefaultChannel || len(fake.messages) != 2 {
		t.Fatalf("unexpected publish channel=%s count=%d", fake.channel, len(fake.messages))
	}

	var ev QueuedEvent
	if err := json.Unmarshal(fake.messages[0], &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != eventType || ev.ItemID != "a" || ev.ConfigName != "toys" || ev.TargetPrice != 28.24 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.CreatedAt != created.UnixMilli() {
		t.Fatalf("unexpected timestamp %d", ev.CreatedAt)
	}
}

func TestNotifyQueuedReportsFailures(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{err: errors.New("connection refused")}
	pub := newPublisher(fake, "custom", quietLogger())

	err := pub.NotifyQueued(context.Background(), domain.ScoutConfig{}, []domain.ScoutQueueItem{{ID: "a"}, {ID: "b"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if fake.channel != "custom" || len(fake.messages) != 2 {
		t.Fatal("every item must still be attempted")
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}
