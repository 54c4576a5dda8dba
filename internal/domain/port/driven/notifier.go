package driven

import (
	"context"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// Notifier delivers events to a real-time notification layer.
// Delivery is best effort; callers never fail a sync because Notify failed.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}
