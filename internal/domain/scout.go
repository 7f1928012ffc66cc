package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultIntervalMs is used when a configuration carries no usable interval.
	DefaultIntervalMs int64 = 900_000
	// MinIntervalMs is the absolute floor for any scout timer.
	MinIntervalMs int64 = 10_000

	DefaultMinMarginPct   = 20.0
	DefaultMinSourcePrice = 5.0
	DefaultMaxSourcePrice = 100.0
	DefaultMaxResults     = 50
	DefaultTargetPlatform = "ebay"
	DefaultKeyword        = "clearance"
)

// DefaultPlatforms is the source-platform set scanned when a configuration lists none.
var DefaultPlatforms = []string{"amazon", "walmart", "target"}

// ScoutConfig is one named, independently scheduled scouting policy.
type ScoutConfig struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	IntervalMs        int64    `json:"intervalMs"`
	Platforms         []string `json:"platforms"`
	Keywords          []string `json:"keywords"`
	MinMarginPct      float64  `json:"minMarginPct"`
	MinSourcePrice    float64  `json:"minSourcePrice"`
	MaxSourcePrice    float64  `json:"maxSourcePrice"`
	MaxResults        int      `json:"maxResultsPerPlatformKeyword"`
	AutoList          bool     `json:"autoList"`
	TargetPlatform    string   `json:"targetPlatform"`
	ExcludeBrands     []string `json:"excludeBrands"`
	ExcludeCategories []string `json:"excludeCategories"`

	LastRunAt               *time.Time `json:"lastRunAt,omitempty"`
	TotalRuns               int64      `json:"totalRuns"`
	TotalOpportunitiesFound int64      `json:"totalOpportunitiesFound"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

// NewScoutConfig returns a fully resolved configuration carrying every default.
func NewScoutConfig(name string) ScoutConfig {
	return ScoutConfig{
		Name:              name,
		Enabled:           true,
		IntervalMs:        DefaultIntervalMs,
		Platforms:         []string{},
		Keywords:          []string{},
		MinMarginPct:      DefaultMinMarginPct,
		MinSourcePrice:    DefaultMinSourcePrice,
		MaxSourcePrice:    DefaultMaxSourcePrice,
		MaxResults:        DefaultMaxResults,
		TargetPlatform:    DefaultTargetPlatform,
		ExcludeBrands:     []string{},
		ExcludeCategories: []string{},
	}
}

// ScoutConfigPatch carries a partial update; nil fields keep their prior value.
type ScoutConfigPatch struct {
	Name              *string   `json:"name,omitempty"`
	Enabled           *bool     `json:"enabled,omitempty"`
	IntervalMs        *int64    `json:"intervalMs,omitempty"`
	Platforms         *[]string `json:"platforms,omitempty"`
	Keywords          *[]string `json:"keywords,omitempty"`
	MinMarginPct      *float64  `json:"minMarginPct,omitempty"`
	MinSourcePrice    *float64  `json:"minSourcePrice,omitempty"`
	MaxSourcePrice    *float64  `json:"maxSourcePrice,omitempty"`
	MaxResults        *int      `json:"maxResultsPerPlatformKeyword,omitempty"`
	AutoList          *bool     `json:"autoList,omitempty"`
	TargetPlatform    *string   `json:"targetPlatform,omitempty"`
	ExcludeBrands     *[]string `json:"excludeBrands,omitempty"`
	ExcludeCategories *[]string `json:"excludeCategories,omitempty"`
}

// Apply merges the patch over cfg. Runtime counters are never touched.
func (p ScoutConfigPatch) Apply(cfg ScoutConfig) ScoutConfig {
	if p.Name != nil {
		cfg.Name = strings.TrimSpace(*p.Name)
	}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	if p.IntervalMs != nil {
		cfg.IntervalMs = *p.IntervalMs
	}
	if p.Platforms != nil {
		cfg.Platforms = cleanList(*p.Platforms)
	}
	if p.Keywords != nil {
		cfg.Keywords = cleanList(*p.Keywords)
	}
	if p.MinMarginPct != nil {
		cfg.MinMarginPct = *p.MinMarginPct
	}
	if p.MinSourcePrice != nil {
		cfg.MinSourcePrice = *p.MinSourcePrice
	}
	if p.MaxSourcePrice != nil {
		cfg.MaxSourcePrice = *p.MaxSourcePrice
	}
	if p.MaxResults != nil {
		cfg.MaxResults = *p.MaxResults
	}
	if p.AutoList != nil {
		cfg.AutoList = *p.AutoList
	}
	if p.TargetPlatform != nil {
		cfg.TargetPlatform = strings.TrimSpace(*p.TargetPlatform)
	}
	if p.ExcludeBrands != nil {
		cfg.ExcludeBrands = cleanList(*p.ExcludeBrands)
	}
	if p.ExcludeCategories != nil {
		cfg.ExcludeCategories = cleanList(*p.ExcludeCategories)
	}
	return cfg
}

// Validate reports the first policy field that cannot be scheduled or scored.
func (c ScoutConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return &ValidationError{Msg: "name is required"}
	case c.IntervalMs < MinIntervalMs:
		return &ValidationError{Msg: fmt.Sprintf("intervalMs must be at least %d", MinIntervalMs)}
	case c.MinMarginPct < 0:
		return &ValidationError{Msg: "minMarginPct must not be negative"}
	case c.MinSourcePrice < 0 || c.MaxSourcePrice < 0:
		return &ValidationError{Msg: "source price band must not be negative"}
	case c.MinSourcePrice > c.MaxSourcePrice:
		return &ValidationError{Msg: "minSourcePrice must not exceed maxSourcePrice"}
	case c.MaxResults < 1:
		return &ValidationError{Msg: "maxResultsPerPlatformKeyword must be at least 1"}
	case c.TargetPlatform == "":
		return &ValidationError{Msg: "targetPlatform is required"}
	}
	return nil
}

// EffectivePlatforms returns the configured platforms or the fallback set.
func (c ScoutConfig) EffectivePlatforms(fallback []string) []string {
	if len(c.Platforms) > 0 {
		return c.Platforms
	}
	if len(fallback) > 0 {
		return fallback
	}
	return DefaultPlatforms
}

// EffectiveKeywords returns the configured keywords or the default search term.
func (c ScoutConfig) EffectiveKeywords() []string {
	if len(c.Keywords) > 0 {
		return c.Keywords
	}
	return []string{DefaultKeyword}
}

// ExcludesBrand reports a case-insensitive match against the brand exclusion list.
func (c ScoutConfig) ExcludesBrand(brand string) bool {
	return containsFold(c.ExcludeBrands, brand)
}

// ExcludesCategory reports a case-insensitive match against the category exclusion list.
func (c ScoutConfig) ExcludesCategory(category string) bool {
	return containsFold(c.ExcludeCategories, category)
}

// EffectiveInterval resolves the timer period for a configuration. A positive
// override replaces every configured interval.
func EffectiveInterval(intervalMs int64, override time.Duration) time.Duration {
	ms := intervalMs
	if override > 0 {
		ms = override.Milliseconds()
	} else if ms <= 0 {
		ms = DefaultIntervalMs
	}
	if ms < MinIntervalMs {
		ms = MinIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

func containsFold(list []string, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			return true
		}
	}
	return false
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
