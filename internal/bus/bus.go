package bus

import (
	"context"
	"fmt"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

// Config controls the live-query window and the poll fallback.
type Config struct {
	// Window caps the number of unconsumed events a subscriber observes
	// per change notification. Events beyond the cap are not delivered
	// until older ones are claimed.
	Window int
	// TTL is the delivery window per event (expiresAt = publish time + TTL).
	TTL time.Duration
	// PollInterval bounds how stale a subscriber can be with respect to
	// writers in other processes, which the local change feed cannot see.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 50
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// Bus is the single logical notification topic: an append-only event log
// in the shared store, consumed via live-query subscriptions.
type Bus struct {
	store store.Store
	log   logx.Logger
	cfg   Config
}

func New(st store.Store, cfg Config, log logx.Logger) *Bus {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bus{store: st, log: log, cfg: cfg.withDefaults()}
}

// Publish appends one event to the log and returns its store-assigned id.
// No retry is performed here; a failed publish is the caller's problem.
func (b *Bus) Publish(ctx context.Context, ev store.NotificationEvent) (int64, error) {
	now := time.Now()
	ev.ID = 0
	ev.CreatedAt = now
	ev.ExpiresAt = now.Add(b.cfg.TTL)
	ev.Processed = false
	ev.ProcessedAt = time.Time{}
	ev.ProcessedBy = ""

	id, err := b.store.InsertEvent(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("bus: publish: %w", err)
	}
	b.log.Debug("event published",
		logx.Int64("id", id),
		logx.String("kind", ev.Kind),
		logx.String("sender", ev.SenderToken),
	)
	return id, nil
}

// Window returns the configured live-query cap.
func (b *Bus) Window() int { return b.cfg.Window }
