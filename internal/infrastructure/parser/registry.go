package parser

import (
	"fmt"
	"log/slog"
	"net/http"

	"OpportunityScout/internal/config"
	"OpportunityScout/internal/scanner"
)

// NewRegistry builds a scanner registry holding one listing scanner per
// configured platform. Invalid definitions are logged and skipped so one bad
// entry does not take the others down.
func NewRegistry(platforms []config.PlatformConfig, client *http.Client, log *slog.Logger) (*scanner.Registry, error) {
	if log == nil {
		log = slog.Default()
	}

	registry := scanner.NewRegistry()
	for _, def := range platforms {
		sc, err := NewListingScanner(def, client)
		if err != nil {
			log.Warn("skip platform", "platform", def.Name, "error", err)
			continue
		}
		registry.Register(sc)
		log.Debug("platform registered", "platform", sc.Platform())
	}

	if len(platforms) > 0 && len(registry.Platforms()) == 0 {
		return nil, fmt.Errorf("no usable platform definitions among %d", len(platforms))
	}
	return registry, nil
}
