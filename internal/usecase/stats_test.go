package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"OpportunityScout/internal/domain"
)

type stubStatsReader struct {
	since    time.Time
	configID string
	err      error
}

func (s *stubStatsReader) Stats(_ context.Context, configID string, since time.Time) (domain.Stats, error) {
	s.configID, s.since = configID, since
	return domain.Stats{TotalQueued: 3}, s.err
}

func TestGetStatsWindow(t *testing.T) {
	t.Parallel()

	reader := &stubStatsReader{}
	svc := NewStatsService(reader)
	svc.now = func() time.Time { return time.Date(2026, 3, 31, 17, 45, 0, 0, time.UTC) }

	stats, err := svc.GetStats(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !reader.since.Equal(want) {
		t.Fatalf("window start %v, want %v", reader.since, want)
	}
	if reader.configID != "cfg-1" || stats.TotalQueued != 3 {
		t.Fatalf("unexpected passthrough %+v", stats)
	}
	if stats.ByDay == nil {
		t.Fatal("daily breakdown must be an empty slice, not nil")
	}
}

func TestGetStatsError(t *testing.T) {
	t.Parallel()

	svc := NewStatsService(&stubStatsReader{err: errors.New("db down")})
	if _, err := svc.GetStats(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyQueued(context.Context, domain.ScoutConfig, []domain.ScoutQueueItem) error {
	f.calls++
	return errors.New("sink down")
}

func TestNotifiersAttemptEverySink(t *testing.T) {
	t.Parallel()

	first, second := &failingNotifier{}, &recordingNotifier{}
	fan := Notifiers{first, nil, second}
	err := fan.NotifyQueued(context.Background(), domain.ScoutConfig{}, []domain.ScoutQueueItem{{ID: "1"}})
	if err == nil {
		t.Fatal("sink error must surface")
	}
	if first.calls != 1 || len(second.batches) != 1 {
		t.Fatal("every sink must be attempted")
	}
}
