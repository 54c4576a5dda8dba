package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

const notifyTimeout = 2 * time.Second

// notifier delivers events without ever failing the caller. A nil target
// makes every send a no-op.
type notifier struct {
	target driven.Notifier
	logger *slog.Logger
	now    func() time.Time
}

func (n notifier) send(ctx context.Context, typ model.EventType, accountID int64, payload any) {
	if n.target == nil {
		return
	}

	// Completion events still go out when the run's context was canceled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("notifier panic: %v", p)
			}
		}()
		return n.target.Notify(ctx, model.Event{Type: typ, AccountID: accountID, Payload: payload, At: n.now().UTC()})
	}()
	if err != nil {
		n.logger.Warn("notification not delivered", "event", typ, "account_id", accountID, "error", err)
	}
}
