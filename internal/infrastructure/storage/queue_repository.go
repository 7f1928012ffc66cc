package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

// QueueRepository persists scouted opportunities. Every status change is a
// single conditional UPDATE so concurrent reviewers cannot double-apply it.
type QueueRepository struct {
	db  *DB
	now func() time.Time
}

var _ ports.QueueRepository = (*QueueRepository)(nil)

// NewQueueRepository wires the shared DB handle.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db, now: time.Now}
}

type queueRow struct {
	ID                 string        `db:"id"`
	ConfigID           string        `db:"config_id"`
	SourcePlatform     string        `db:"source_platform"`
	TargetPlatform     string        `db:"target_platform"`
	SourcePrice        float64       `db:"source_price"`
	TargetPrice        float64       `db:"target_price"`
	EstimatedMarginPct float64       `db:"estimated_margin_pct"`
	EstimatedProfit    float64       `db:"estimated_profit"`
	ProductID          string        `db:"product_id"`
	ProductName        string        `db:"product_name"`
	ProductURL         string        `db:"product_url"`
	ImageURL           string        `db:"image_url"`
	Category           string        `db:"category"`
	Brand              string        `db:"brand"`
	Status             string        `db:"status"`
	ReviewedAt         sql.NullInt64 `db:"reviewed_at"`
	ListedAt           sql.NullInt64 `db:"listed_at"`
	ListingID          string        `db:"listing_id"`
	CreatedAt          int64         `db:"created_at"`
}

var queueColumns = []string{
	"id", "config_id", "source_platform", "target_platform", "source_price", "target_price",
	"estimated_margin_pct", "estimated_profit", "product_id", "product_name", "product_url",
	"image_url", "category", "brand", "status", "reviewed_at", "listed_at", "listing_id", "created_at",
}

// Insert stores a new item. It reports false when a pending item with the
// same (config, platform, url) already exists; the partial unique index makes
// that check and the insert one statement.
func (r *QueueRepository) Insert(ctx context.Context, item domain.ScoutQueueItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now()
	}
	if item.Status == "" {
		item.Status = domain.StatusPending
	}

	var reviewedAt, listedAt any
	if item.ReviewedAt != nil {
		reviewedAt = toMillis(*item.ReviewedAt)
	}
	if item.ListedAt != nil {
		listedAt = toMillis(*item.ListedAt)
	}

	query, args, err := r.db.sb.Insert("scout_queue").
		Columns(queueColumns...).
		Values(
			item.ID, item.ConfigID, item.SourcePlatform, item.TargetPlatform, item.SourcePrice, item.TargetPrice,
			item.EstimatedMarginPct, item.EstimatedProfit, item.ProductID, item.ProductName, item.ProductURL,
			item.ImageURL, item.Category, item.Brand, string(item.Status), reviewedAt, listedAt, item.ListingID,
			toMillis(item.CreatedAt),
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert queue item: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert queue item rows: %w", err)
	}
	return n > 0, nil
}

// Get returns one item or nil when absent.
func (r *QueueRepository) Get(ctx context.Context, id string) (*domain.ScoutQueueItem, error) {
	query, args, err := r.db.sb.Select(queueColumns...).From("scout_queue").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get queue item: %w", err)
	}

	var row queueRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue item %s: %w", id, err)
	}
	item := row.toDomain()
	return &item, nil
}

// List returns items newest first, optionally narrowed by status and owner.
func (r *QueueRepository) List(ctx context.Context, filter domain.QueueFilter) ([]domain.ScoutQueueItem, error) {
	filter = filter.Normalize()

	builder := r.db.sb.Select(queueColumns...).
		From("scout_queue").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.ConfigID != "" {
		builder = builder.Where(sq.Eq{"config_id": filter.ConfigID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list queue: %w", err)
	}

	var rows []queueRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	items := make([]domain.ScoutQueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// Approve moves a pending item to approved.
func (r *QueueRepository) Approve(ctx context.Context, id string) (bool, error) {
	return r.review(ctx, id, domain.StatusApproved)
}

// Reject moves a pending item to rejected.
func (r *QueueRepository) Reject(ctx context.Context, id string) (bool, error) {
	return r.review(ctx, id, domain.StatusRejected)
}

func (r *QueueRepository) review(ctx context.Context, id string, to domain.QueueStatus) (bool, error) {
	return r.transition(ctx, id, domain.StatusPending, to, map[string]any{
		"reviewed_at": toMillis(r.now()),
	})
}

// MarkListed records the marketplace listing for an approved item.
func (r *QueueRepository) MarkListed(ctx context.Context, id, listingID string) (bool, error) {
	return r.transition(ctx, id, domain.StatusApproved, domain.StatusListed, map[string]any{
		"listed_at":  toMillis(r.now()),
		"listing_id": listingID,
	})
}

func (r *QueueRepository) transition(ctx context.Context, id string, from, to domain.QueueStatus, extra map[string]any) (bool, error) {
	if !domain.IsTransitionAllowed(from, to) {
		return false, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, from, to)
	}

	builder := r.db.sb.Update("scout_queue").
		Set("status", string(to)).
		Where(sq.Eq{"id": id, "status": string(from)})
	for col, v := range extra {
		builder = builder.Set(col, v)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows: %w", err)
	}
	return n > 0, nil
}

// ExpireOlderThan expires pending items created before now-maxAgeDays and
// returns how many changed. Re-running with the same cutoff changes nothing.
func (r *QueueRepository) ExpireOlderThan(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays < 0 {
		return 0, &domain.ValidationError{Msg: "maxAgeDays must not be negative"}
	}
	now := r.now()
	cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	query, args, err := r.db.sb.Update("scout_queue").
		Set("status", string(domain.StatusExpired)).
		Set("reviewed_at", toMillis(now)).
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		Where(sq.Lt{"created_at": toMillis(cutoff)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build expire: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("expire queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire rows: %w", err)
	}
	return n, nil
}

// ExistsPendingDuplicate reports whether the config already holds a pending
// item for the same url on the same source platform.
func (r *QueueRepository) ExistsPendingDuplicate(ctx context.Context, url, sourcePlatform, configID string) (bool, error) {
	if url == "" {
		return false, nil
	}
	query, args, err := r.db.sb.Select("COUNT(*)").
		From("scout_queue").
		Where(sq.Eq{
			"config_id":       configID,
			"source_platform": sourcePlatform,
			"product_url":     url,
			"status":          string(domain.StatusPending),
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build duplicate check: %w", err)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return n > 0, nil
}

func (row queueRow) toDomain() domain.ScoutQueueItem {
	return domain.ScoutQueueItem{
		ID:                 row.ID,
		ConfigID:           row.ConfigID,
		SourcePlatform:     row.SourcePlatform,
		TargetPlatform:     row.TargetPlatform,
		SourcePrice:        row.SourcePrice,
		TargetPrice:        row.TargetPrice,
		EstimatedMarginPct: row.EstimatedMarginPct,
		EstimatedProfit:    row.EstimatedProfit,
		ProductID:          row.ProductID,
		ProductName:        row.ProductName,
		ProductURL:         row.ProductURL,
		ImageURL:           row.ImageURL,
		Category:           row.Category,
		Brand:              row.Brand,
		Status:             domain.QueueStatus(row.Status),
		ReviewedAt:         fromNullMillis(row.ReviewedAt),
		ListedAt:           fromNullMillis(row.ListedAt),
		ListingID:          row.ListingID,
		CreatedAt:          fromMillis(row.CreatedAt),
	}
}
