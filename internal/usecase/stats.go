package usecase

import (
	"context"
	"fmt"
	"time"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

// StatsService reports queue and run rollups.
type StatsService struct {
	reader ports.StatsReader
	now    func() time.Time
}

// NewStatsService wires the stats reader.
func NewStatsService(reader ports.StatsReader) *StatsService {
	return &StatsService{reader: reader, now: time.Now}
}

// GetStats returns totals plus a per-day breakdown covering the last
// StatsWindowDays UTC days, today included. An empty configID covers every
// configuration.
func (s *StatsService) GetStats(ctx context.Context, configID string) (domain.Stats, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(domain.StatsWindowDays - 1))

	stats, err := s.reader.Stats(ctx, configID, since)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	if stats.ByDay == nil {
		stats.ByDay = []domain.DayStats{}
	}
	return stats, nil
}
