package store

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Config configures the shared store.
//
// Driver values:
//   - "sqlite": SQLite database file on a shared path
//   - "memory": in-process store (tests, single-process runs)
//
// If Driver is empty, "memory" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CapabilityState is the host-granted permission to render notifications.
type CapabilityState string

const (
	CapabilityUnknown CapabilityState = "unknown"
	CapabilityGranted CapabilityState = "granted"
	CapabilityDenied  CapabilityState = "denied"
)

// DeviceRecord is one registered installation in notification_devices.
//
// Token is not enforced unique by the store: concurrent registration of
// the same token may produce two records (accepted limitation, the
// registry's read-then-write is advisory).
type DeviceRecord struct {
	Token        string
	UserID       string
	Capability   CapabilityState
	Active       bool
	RegisteredAt time.Time
	LastSeen     time.Time
}

// NotificationEvent is one broadcastable occurrence in global_notifications.
//
// ID and CreatedAt are assigned by the store on insert. Processed flips
// false->true when a consuming device claims the event; the update is
// last-write-wins, so concurrent claims overwrite each other's metadata.
type NotificationEvent struct {
	ID          int64
	Kind        string
	Title       string
	Body        string
	Payload     json.RawMessage
	SenderToken string
	CreatedAt   time.Time
	Processed   bool
	ProcessedAt time.Time
	ProcessedBy string
	ExpiresAt   time.Time
}

// Expired reports whether the event is past its delivery window at now.
// The boundary is exclusive: an event with ExpiresAt == now is expired.
func (e NotificationEvent) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
