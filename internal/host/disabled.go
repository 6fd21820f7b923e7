package host

import (
	"context"

	"leadnotify/internal/store"
)

// Disabled is a Host with no rendering capability. Used when
// notifications are switched off in config; the lifecycle controller
// observes an unsupported host and parks in Inactive.
type Disabled struct{}

func (Disabled) Supported() bool { return false }

func (Disabled) RequestCapability(context.Context) store.CapabilityState {
	return store.CapabilityDenied
}

func (Disabled) Background() Surface { return nil }
func (Disabled) Foreground() Surface { return nil }
