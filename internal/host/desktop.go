package host

import (
	"context"
	"os/exec"
	"sync"

	"github.com/godbus/dbus/v5"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

// Desktop talks to the freedesktop notification daemon over the session
// bus, with notify-send as the foreground-only fallback when no bus is
// reachable (e.g. SSH sessions with a forwarded display).
type Desktop struct {
	log     logx.Logger
	appName string

	background Surface
	foreground Surface

	mu    sync.Mutex
	state store.CapabilityState
}

func NewDesktop(appName string, log logx.Logger) *Desktop {
	if log.IsZero() {
		log = logx.Nop()
	}
	if appName == "" {
		appName = "leadnotify"
	}
	d := &Desktop{log: log, appName: appName, state: store.CapabilityUnknown}

	if conn, err := dbus.SessionBus(); err == nil {
		d.background = &dbusSurface{conn: conn, appName: appName}
	} else {
		log.Debug("session bus unavailable", logx.Err(err))
	}
	if path, err := exec.LookPath("notify-send"); err == nil {
		d.foreground = &execSurface{bin: path, appName: appName, log: log}
	}

	return d
}

func (d *Desktop) Supported() bool {
	return d.background != nil || d.foreground != nil
}

func (d *Desktop) Background() Surface { return d.background }
func (d *Desktop) Foreground() Surface { return d.foreground }

// RequestCapability probes the notification daemon once and caches the
// outcome. The decision sticks until the process restarts or the
// lifecycle is explicitly reinitialized.
func (d *Desktop) RequestCapability(ctx context.Context) store.CapabilityState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != store.CapabilityUnknown {
		return d.state
	}

	switch {
	case d.background != nil:
		if err := d.probeDaemon(ctx); err != nil {
			d.log.Warn("notification daemon unreachable", logx.Err(err))
			if d.foreground != nil {
				d.state = store.CapabilityGranted
			} else {
				d.state = store.CapabilityDenied
			}
		} else {
			d.state = store.CapabilityGranted
		}
	case d.foreground != nil:
		d.state = store.CapabilityGranted
	default:
		d.state = store.CapabilityDenied
	}
	return d.state
}

// ResetCapability clears the cached negotiation outcome so the next
// RequestCapability probes the daemon again.
func (d *Desktop) ResetCapability() {
	d.mu.Lock()
	d.state = store.CapabilityUnknown
	d.mu.Unlock()
}

func (d *Desktop) probeDaemon(ctx context.Context) error {
	bg, ok := d.background.(*dbusSurface)
	if !ok {
		return nil
	}
	obj := bg.conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	var caps []string
	return obj.CallWithContext(ctx, notifyInterface+".GetCapabilities", 0).Store(&caps)
}

// ---- surfaces ----

type dbusSurface struct {
	conn    *dbus.Conn
	appName string
}

func (s *dbusSurface) Name() string { return "dbus" }

func (s *dbusSurface) Notify(ctx context.Context, n Notification) error {
	hints := map[string]dbus.Variant{}
	if len(n.Payload) > 0 {
		hints["x-leadnotify-payload"] = dbus.MakeVariant(string(n.Payload))
	}
	if n.Tag != "" {
		hints["x-leadnotify-tag"] = dbus.MakeVariant(n.Tag)
	}

	obj := s.conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	call := obj.CallWithContext(ctx, notifyInterface+".Notify", 0,
		s.appName,  // app_name
		uint32(0),  // replaces_id
		n.Icon,     // app_icon
		n.Title,    // summary
		n.Body,     // body
		[]string{}, // actions
		hints,
		int32(-1), // expire_timeout: server default
	)
	return call.Err
}

type execSurface struct {
	bin     string
	appName string
	log     logx.Logger
}

func (s *execSurface) Name() string { return "notify-send" }

func (s *execSurface) Notify(ctx context.Context, n Notification) error {
	args := []string{"-a", s.appName}
	if n.Icon != "" {
		args = append(args, "-i", n.Icon)
	}
	args = append(args, n.Title, n.Body)
	if len(n.Payload) > 0 {
		// The exec fallback has nowhere to attach user-data.
		s.log.Debug("payload dropped on fallback surface", logx.String("tag", n.Tag))
	}
	return exec.CommandContext(ctx, s.bin, args...).Run()
}
