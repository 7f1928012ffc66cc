package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

const policyVersion = 1

// ConfigRepository persists scout configurations. The policy fields live in a
// versioned JSON blob decoded on top of the defaults.
type ConfigRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.ConfigRepository = (*ConfigRepository)(nil)

// NewConfigRepository wires the shared DB handle.
func NewConfigRepository(db *DB, log *slog.Logger) *ConfigRepository {
	if log == nil {
		log = slog.Default()
	}
	return &ConfigRepository{db: db, logger: log, now: time.Now}
}

type configRow struct {
	ID                      string        `db:"id"`
	Name                    string        `db:"name"`
	Enabled                 bool          `db:"enabled"`
	PolicyJSON              string        `db:"policy_json"`
	PolicyVersion           int           `db:"policy_version"`
	LastRunAt               sql.NullInt64 `db:"last_run_at"`
	TotalRuns               int64         `db:"total_runs"`
	TotalOpportunitiesFound int64         `db:"total_opportunities_found"`
	CreatedAt               int64         `db:"created_at"`
	UpdatedAt               int64         `db:"updated_at"`
}

// storedPolicy is the on-disk shape of the policy blob.
type storedPolicy struct {
	Version           int      `json:"version"`
	IntervalMs        int64    `json:"intervalMs"`
	Platforms         []string `json:"platforms"`
	Keywords          []string `json:"keywords"`
	MinMarginPct      float64  `json:"minMarginPct"`
	MinSourcePrice    float64  `json:"minSourcePrice"`
	MaxSourcePrice    float64  `json:"maxSourcePrice"`
	MaxResults        int      `json:"maxResults"`
	AutoList          bool     `json:"autoList"`
	TargetPlatform    string   `json:"targetPlatform"`
	ExcludeBrands     []string `json:"excludeBrands"`
	ExcludeCategories []string `json:"excludeCategories"`
}

var configColumns = []string{
	"id", "name", "enabled", "policy_json", "policy_version", "last_run_at",
	"total_runs", "total_opportunities_found", "created_at", "updated_at",
}

// Create merges patch over the defaults, validates and inserts a new configuration.
func (r *ConfigRepository) Create(ctx context.Context, name string, patch domain.ScoutConfigPatch) (domain.ScoutConfig, error) {
	patch.Name = &name
	cfg := patch.Apply(domain.NewScoutConfig(name))
	if err := cfg.Validate(); err != nil {
		return domain.ScoutConfig{}, err
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	blob, err := encodePolicy(cfg)
	if err != nil {
		return domain.ScoutConfig{}, err
	}

	query, args, err := r.db.sb.Insert("scout_configs").
		Columns("id", "name", "enabled", "policy_json", "policy_version", "total_runs", "total_opportunities_found", "created_at", "updated_at").
		Values(cfg.ID, cfg.Name, cfg.Enabled, blob, policyVersion, 0, 0, toMillis(now), toMillis(now)).
		ToSql()
	if err != nil {
		return domain.ScoutConfig{}, fmt.Errorf("build insert config: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return domain.ScoutConfig{}, fmt.Errorf("insert config: %w", err)
	}
	return cfg, nil
}

// Update applies a shallow merge. It returns nil when the id does not exist.
func (r *ConfigRepository) Update(ctx context.Context, id string, patch domain.ScoutConfigPatch) (*domain.ScoutConfig, error) {
	current, err := r.Get(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}

	cfg := patch.Apply(*current)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)

	blob, err := encodePolicy(cfg)
	if err != nil {
		return nil, err
	}

	query, args, err := r.db.sb.Update("scout_configs").
		Set("name", cfg.Name).
		Set("enabled", cfg.Enabled).
		Set("policy_json", blob).
		Set("policy_version", policyVersion).
		Set("updated_at", toMillis(cfg.UpdatedAt)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update config: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update config %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return &cfg, nil
}

// Get returns one configuration or nil when absent.
func (r *ConfigRepository) Get(ctx context.Context, id string) (*domain.ScoutConfig, error) {
	query, args, err := r.db.sb.Select(configColumns...).From("scout_configs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get config: %w", err)
	}

	var row configRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get config %s: %w", id, err)
	}
	cfg := r.toDomain(row)
	return &cfg, nil
}

// List returns every configuration, disabled ones included, oldest first.
func (r *ConfigRepository) List(ctx context.Context) ([]domain.ScoutConfig, error) {
	return r.list(ctx, nil)
}

// ListEnabled returns the configurations the daemon should schedule.
func (r *ConfigRepository) ListEnabled(ctx context.Context) ([]domain.ScoutConfig, error) {
	return r.list(ctx, sq.Eq{"enabled": true})
}

func (r *ConfigRepository) list(ctx context.Context, where sq.Sqlizer) ([]domain.ScoutConfig, error) {
	builder := r.db.sb.Select(configColumns...).From("scout_configs").OrderBy("created_at ASC", "id ASC")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list configs: %w", err)
	}

	var rows []configRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	out := make([]domain.ScoutConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toDomain(row))
	}
	return out, nil
}

// SoftDelete disables a configuration, keeping its history and counters.
func (r *ConfigRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	query, args, err := r.db.sb.Update("scout_configs").
		Set("enabled", false).
		Set("updated_at", toMillis(r.now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build soft delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("soft delete config %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows: %w", err)
	}
	return n > 0, nil
}

// RecordRun bumps the run counters in a single statement.
func (r *ConfigRepository) RecordRun(ctx context.Context, id string, at time.Time, queued int) error {
	query, args, err := r.db.sb.Update("scout_configs").
		Set("last_run_at", toMillis(at)).
		Set("total_runs", sq.Expr("total_runs + 1")).
		Set("total_opportunities_found", sq.Expr("total_opportunities_found + ?", queued)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record run %s: %w", id, err)
	}
	return nil
}

func (r *ConfigRepository) toDomain(row configRow) domain.ScoutConfig {
	cfg := r.decodePolicy(row)
	cfg.ID = row.ID
	cfg.Name = row.Name
	cfg.Enabled = row.Enabled
	cfg.LastRunAt = fromNullMillis(row.LastRunAt)
	cfg.TotalRuns = row.TotalRuns
	cfg.TotalOpportunitiesFound = row.TotalOpportunitiesFound
	cfg.CreatedAt = fromMillis(row.CreatedAt)
	cfg.UpdatedAt = fromMillis(row.UpdatedAt)
	return cfg
}

// decodePolicy never fails: a blob that cannot be read yields the defaults.
func (r *ConfigRepository) decodePolicy(row configRow) domain.ScoutConfig {
	defaults := domain.NewScoutConfig(row.Name)
	stored := policyFrom(defaults)

	if err := json.Unmarshal([]byte(row.PolicyJSON), &stored); err != nil {
		r.logger.Warn("config policy unreadable, using defaults", "config_id", row.ID, "error", err)
		return defaults
	}
	if stored.Version != policyVersion {
		r.logger.Warn("config policy version unsupported, using defaults", "config_id", row.ID, "version", stored.Version)
		return defaults
	}

	cfg := defaults
	cfg.IntervalMs = stored.IntervalMs
	cfg.Platforms = nonNil(stored.Platforms)
	cfg.Keywords = nonNil(stored.Keywords)
	cfg.MinMarginPct = stored.MinMarginPct
	cfg.MinSourcePrice = stored.MinSourcePrice
	cfg.MaxSourcePrice = stored.MaxSourcePrice
	cfg.MaxResults = stored.MaxResults
	cfg.AutoList = stored.AutoList
	cfg.TargetPlatform = stored.TargetPlatform
	cfg.ExcludeBrands = nonNil(stored.ExcludeBrands)
	cfg.ExcludeCategories = nonNil(stored.ExcludeCategories)

	if cfg.IntervalMs <= 0 {
		cfg.IntervalMs = domain.DefaultIntervalMs
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = domain.DefaultMaxResults
	}
	if cfg.TargetPlatform == "" {
		cfg.TargetPlatform = domain.DefaultTargetPlatform
	}
	return cfg
}

func policyFrom(cfg domain.ScoutConfig) storedPolicy {
	return storedPolicy{
		Version:           policyVersion,
		IntervalMs:        cfg.IntervalMs,
		Platforms:         cfg.Platforms,
		Keywords:          cfg.Keywords,
		MinMarginPct:      cfg.MinMarginPct,
		MinSourcePrice:    cfg.MinSourcePrice,
		MaxSourcePrice:    cfg.MaxSourcePrice,
		MaxResults:        cfg.MaxResults,
		AutoList:          cfg.AutoList,
		TargetPlatform:    cfg.TargetPlatform,
		ExcludeBrands:     cfg.ExcludeBrands,
		ExcludeCategories: cfg.ExcludeCategories,
	}
}

func encodePolicy(cfg domain.ScoutConfig) (string, error) {
	raw, err := json.Marshal(policyFrom(cfg))
	if err != nil {
		return "", fmt.Errorf("encode policy: %w", err)
	}
	return string(raw), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
