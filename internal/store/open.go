package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "leadnotify/pkg/logx"
)

// Store is the shared-store boundary used by the registry, the bus and
// the janitor. Implementations must be safe for concurrent use.
type Store interface {
	// Device bookkeeping (notification_devices).
	InsertDevice(ctx context.Context, rec DeviceRecord) error
	UpdateDevice(ctx context.Context, rec DeviceRecord) error
	GetDevice(ctx context.Context, token string) (DeviceRecord, bool, error)
	ListActiveDevices(ctx context.Context) ([]DeviceRecord, error)
	MarkDeviceInactive(ctx context.Context, token string, at time.Time) error

	// Append-only event log (global_notifications).
	InsertEvent(ctx context.Context, ev NotificationEvent) (int64, error)
	// UnprocessedEvents returns the live window: unclaimed, unexpired
	// events ordered by creation time descending, capped at limit.
	UnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]NotificationEvent, error)
	MarkProcessed(ctx context.Context, id int64, deviceToken string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Changes returns a coalescing change-signal channel that pulses
	// after local writes. Remote writers (other processes sharing the
	// same backing file) are not visible here; callers poll for those.
	Changes(buffer int) (<-chan struct{}, func())

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
