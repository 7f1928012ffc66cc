package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

// StatsRepository computes reporting rollups over both scout tables.
type StatsRepository struct {
	db *DB
}

var _ ports.StatsReader = (*StatsRepository)(nil)

// NewStatsRepository wires the shared DB handle.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Stats aggregates queue counts by status, the configs' opportunity counters
// and a per-day breakdown of items created since the given instant. An empty
// configID covers every configuration.
func (r *StatsRepository) Stats(ctx context.Context, configID string, since time.Time) (domain.Stats, error) {
	var stats domain.Stats

	scanned := r.db.sb.Select("COALESCE(SUM(total_opportunities_found), 0)").From("scout_configs")
	if configID != "" {
		scanned = scanned.Where(sq.Eq{"id": configID})
	}
	query, args, err := scanned.ToSql()
	if err != nil {
		return stats, fmt.Errorf("build scanned total: %w", err)
	}
	if err := r.db.GetContext(ctx, &stats.TotalScanned, query, args...); err != nil {
		return stats, fmt.Errorf("scanned total: %w", err)
	}

	byStatus := r.db.sb.Select("status", "COUNT(*) AS n").From("scout_queue").GroupBy("status")
	if configID != "" {
		byStatus = byStatus.Where(sq.Eq{"config_id": configID})
	}
	query, args, err = byStatus.ToSql()
	if err != nil {
		return stats, fmt.Errorf("build status totals: %w", err)
	}

	var counts []struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return stats, fmt.Errorf("status totals: %w", err)
	}
	for _, c := range counts {
		stats.TotalQueued += c.N
		switch domain.QueueStatus(c.Status) {
		case domain.StatusPending:
			stats.TotalPending = c.N
		case domain.StatusApproved:
			stats.TotalApproved = c.N
		case domain.StatusListed:
			stats.TotalListed = c.N
		case domain.StatusRejected:
			stats.TotalRejected = c.N
		case domain.StatusExpired:
			stats.TotalExpired = c.N
		}
	}

	stats.ByDay, err = r.byDay(ctx, configID, since)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// byDay buckets in Go so the same query works on every driver.
func (r *StatsRepository) byDay(ctx context.Context, configID string, since time.Time) ([]domain.DayStats, error) {
	builder := r.db.sb.Select("created_at", "status").
		From("scout_queue").
		Where(sq.GtOrEq{"created_at": toMillis(since)})
	if configID != "" {
		builder = builder.Where(sq.Eq{"config_id": configID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build daily breakdown: %w", err)
	}

	var rows []struct {
		CreatedAt int64  `db:"created_at"`
		Status    string `db:"status"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("daily breakdown: %w", err)
	}

	days := map[string]*domain.DayStats{}
	for _, row := range rows {
		key := fromMillis(row.CreatedAt).Format("2006-01-02")
		day, ok := days[key]
		if !ok {
			day = &domain.DayStats{Day: key}
			days[key] = day
		}
		day.Queued++
		switch domain.QueueStatus(row.Status) {
		case domain.StatusApproved:
			day.Approved++
		case domain.StatusListed:
			day.Listed++
		case domain.StatusRejected:
			day.Rejected++
		}
	}

	out := make([]domain.DayStats, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	return out, nil
}
