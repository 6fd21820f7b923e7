package host

import (
	"context"
	"encoding/json"

	"leadnotify/internal/store"
)

// Notification is one user-facing system notification.
//
// Payload is opaque user-data attached for later retrieval when the user
// interacts with the rendered notification; interaction handling itself
// is delegated to the host UI.
type Notification struct {
	Title   string
	Body    string
	Icon    string
	Tag     string
	Payload json.RawMessage
}

// Surface is a single rendering primitive.
type Surface interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Host is the capability boundary to the environment: whether rendering
// primitives exist, whether we are allowed to use them, and which
// surfaces were acquired during negotiation.
type Host interface {
	// Supported reports whether a rendering primitive exists at all.
	// Support is independent of grant: a supported host may still deny.
	Supported() bool
	// RequestCapability negotiates permission to render. Idempotent:
	// re-requesting an already-decided capability returns the cached
	// state without prompting again.
	RequestCapability(ctx context.Context) store.CapabilityState
	// Background returns the rendering surface that persists independent
	// of the foreground process, or nil if none was acquired.
	Background() Surface
	// Foreground returns the fallback rendering primitive, or nil.
	Foreground() Surface
}
