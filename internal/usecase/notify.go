package usecase

import (
	"context"
	"errors"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

// Notifiers fans one batch out to every sink. All sinks are attempted; their
// errors are joined.
type Notifiers []ports.Notifier

var _ ports.Notifier = Notifiers(nil)

// NotifyQueued calls every non-nil sink in order.
func (n Notifiers) NotifyQueued(ctx context.Context, cfg domain.ScoutConfig, items []domain.ScoutQueueItem) error {
	var errs []error
	for _, sink := range n {
		if sink == nil {
			continue
		}
		if err := sink.NotifyQueued(ctx, cfg, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
