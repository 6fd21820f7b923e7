package delivery

import (
	"context"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

// ShouldDeliver reports whether a subscribing device should render the
// event. The originating device never re-notifies itself: it already
// rendered synchronously at publish time.
func ShouldDeliver(ev store.NotificationEvent, localToken string) bool {
	return ev.SenderToken != localToken
}

// Claimer marks events as consumed on behalf of the local device.
type Claimer struct {
	store store.Store
	log   logx.Logger
}

func NewClaimer(st store.Store, log logx.Logger) *Claimer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Claimer{store: st, log: log}
}

// Claim unconditionally marks the event processed by the local device.
//
// This is a "mark seen", not a lock: the store applies last-write-wins,
// so two devices racing on the same event both render and the second
// claim overwrites the first's metadata. Failures are logged and the
// operation abandoned; the event's delivery state elsewhere is unaffected.
func (c *Claimer) Claim(ctx context.Context, eventID int64, localToken string) {
	if err := c.store.MarkProcessed(ctx, eventID, localToken, time.Now()); err != nil {
		c.log.Warn("claim failed",
			logx.Int64("event", eventID),
			logx.String("device", localToken),
			logx.Err(err),
		)
	}
}
