package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewScoutConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewScoutConfig("x")
	if !cfg.Enabled || cfg.IntervalMs != DefaultIntervalMs || cfg.MinMarginPct != 20 ||
		cfg.MinSourcePrice != 5 || cfg.MaxSourcePrice != 100 || cfg.MaxResults != 50 ||
		cfg.TargetPlatform != "ebay" || cfg.AutoList {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestPatchApplyIsShallow(t *testing.T) {
	t.Parallel()

	base := NewScoutConfig("base")
	base.TotalRuns = 7
	keywords := []string{" lego ", "", "puzzle"}
	margin := 30.0
	cfg := ScoutConfigPatch{Keywords: &keywords, MinMarginPct: &margin}.Apply(base)

	if cfg.Name != "base" || cfg.MaxResults != DefaultMaxResults || cfg.TotalRuns != 7 {
		t.Fatalf("untouched fields changed: %+v", cfg)
	}
	if cfg.MinMarginPct != 30 || len(cfg.Keywords) != 2 || cfg.Keywords[0] != "lego" {
		t.Fatalf("patch not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutate := []func(*ScoutConfig){
		func(c *ScoutConfig) { c.Name = " " },
		func(c *ScoutConfig) { c.IntervalMs = MinIntervalMs - 1 },
		func(c *ScoutConfig) { c.MinMarginPct = -1 },
		func(c *ScoutConfig) { c.MinSourcePrice = 50; c.MaxSourcePrice = 10 },
		func(c *ScoutConfig) { c.MaxResults = 0 },
		func(c *ScoutConfig) { c.TargetPlatform = "" },
	}
	for i, m := range mutate {
		cfg := NewScoutConfig("x")
		m(&cfg)
		var ve *ValidationError
		if err := cfg.Validate(); !errors.As(err, &ve) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestEffectiveLists(t *testing.T) {
	t.Parallel()

	cfg := NewScoutConfig("x")
	if got := cfg.EffectivePlatforms(nil); len(got) != 3 || got[0] != "amazon" {
		t.Fatalf("unexpected default platforms %v", got)
	}
	if got := cfg.EffectivePlatforms([]string{"etsy"}); len(got) != 1 || got[0] != "etsy" {
		t.Fatalf("fallback ignored: %v", got)
	}
	if got := cfg.EffectiveKeywords(); len(got) != 1 || got[0] != DefaultKeyword {
		t.Fatalf("unexpected default keywords %v", got)
	}

	cfg.ExcludeBrands = []string{"Acme"}
	if !cfg.ExcludesBrand(" acme") || cfg.ExcludesBrand("") || cfg.ExcludesCategory("acme") {
		t.Fatal("exclusion matching is case-insensitive and per list")
	}
}

func TestEffectiveInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ms       int64
		override time.Duration
		want     time.Duration
	}{
		{60_000, 0, time.Minute},
		{0, 0, 15 * time.Minute},
		{1_000, 0, 10 * time.Second},
		{60_000, 30 * time.Second, 30 * time.Second},
		{60_000, time.Second, 10 * time.Second},
	}
	for _, c := range cases {
		if got := EffectiveInterval(c.ms, c.override); got != c.want {
			t.Fatalf("EffectiveInterval(%d, %v) = %v, want %v", c.ms, c.override, got, c.want)
		}
	}
}
