package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"leadnotify/internal/bus"
	"leadnotify/internal/delivery"
	"leadnotify/internal/host"
	"leadnotify/internal/registry"
	"leadnotify/internal/render"
	"leadnotify/internal/runtime/supervisor"
	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

var ErrNotActive = errors.New("service: not active")

// State is the lifecycle state of the notification subsystem.
type State int

const (
	Uninitialized State = iota
	Negotiating
	Active
	// Inactive means capability was denied or the host is unsupported;
	// terminal until an explicit Reinitialize.
	Inactive
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Controller orchestrates the subsystem lifecycle: capability
// negotiation, device registration, the bus subscription wired through
// the delivery filter into the renderer, and teardown.
//
// One Controller per process; construct it once at startup and hand the
// reference to whatever needs to publish or control it.
type Controller struct {
	host    host.Host
	reg     *registry.Registry
	bus     *bus.Bus
	rend    *render.Renderer
	claimer *delivery.Claimer
	log     logx.Logger
	userID  string

	mu    sync.Mutex
	state State
	token string
	sub   *bus.Subscription
	sup   *supervisor.Supervisor
}

func New(h host.Host, reg *registry.Registry, b *bus.Bus, rend *render.Renderer, claimer *delivery.Claimer, userID string, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		host:    h,
		reg:     reg,
		bus:     b,
		rend:    rend,
		claimer: claimer,
		log:     log,
		userID:  userID,
		state:   Uninitialized,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceToken returns the local device token, or "" before activation.
func (c *Controller) DeviceToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Initialize negotiates capability and activates the subsystem.
// No-op when already Active. On capability denial or an unsupported
// host it parks in Inactive and performs no further action (no registry
// write, no subscription).
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Active {
		return nil
	}
	c.state = Negotiating

	if !c.host.Supported() {
		// Terminal for the subsystem; degrades to a silent no-op.
		c.state = Inactive
		c.log.Info("host unsupported; notifications disabled")
		return nil
	}

	capState := c.host.RequestCapability(ctx)
	c.rend.SetCapability(capState)
	if capState != store.CapabilityGranted {
		c.state = Inactive
		c.log.Info("capability not granted; notifications disabled", logx.String("capability", string(capState)))
		return nil
	}

	token, err := c.reg.EnsureDeviceIdentity()
	if err != nil {
		c.state = Uninitialized
		return err
	}
	if err := c.reg.RegisterOrRefresh(ctx, token, c.userID, capState); err != nil {
		c.state = Uninitialized
		return err
	}

	// The subscription outlives the Initialize call; its lifetime is
	// bounded by Teardown, not by ctx.
	sup := supervisor.New(context.Background(), supervisor.WithLogger(c.log))
	sub, err := c.bus.Subscribe(sup.Context(), func(ev store.NotificationEvent) {
		c.onEvent(sup, ev)
	})
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = sup.Stop(stopCtx)
		cancel()
		c.state = Uninitialized
		return err
	}

	c.token = token
	c.sup = sup
	c.sub = sub
	c.state = Active
	c.log.Info("notification service active", logx.String("device", token))
	return nil
}

// Reinitialize forces the lifecycle back to Uninitialized and runs
// Initialize again. Used after external capability changes.
func (c *Controller) Reinitialize(ctx context.Context) error {
	c.Teardown(ctx)

	c.mu.Lock()
	c.state = Uninitialized
	c.mu.Unlock()

	// Let the host re-probe instead of answering from cache.
	if h, ok := c.host.(interface{ ResetCapability() }); ok {
		h.ResetCapability()
	}
	return c.Initialize(ctx)
}

// Teardown cancels the subscription, waits out in-flight event handlers,
// and marks the device inactive. Safe to call from Inactive or
// Uninitialized (no-op), and safe to call repeatedly.
func (c *Controller) Teardown(ctx context.Context) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	sub := c.sub
	sup := c.sup
	token := c.token
	c.sub = nil
	c.sup = nil
	c.state = Uninitialized
	c.mu.Unlock()

	// No callback fires after Cancel returns.
	sub.Cancel()
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("event handlers did not drain cleanly", logx.Err(err))
	}

	c.reg.MarkInactive(ctx, token)
	c.log.Info("notification service torn down", logx.String("device", token))
}

// PublishDomainEvent is the single write path exposed to the producing
// application. On success the originating device renders its own copy
// synchronously so the user sees instant feedback; the self-filter keeps
// the subscription path from rendering it a second time.
func (c *Controller) PublishDomainEvent(ctx context.Context, kind, title, body string, payload json.RawMessage) (int64, error) {
	c.mu.Lock()
	token := c.token
	active := c.state == Active
	c.mu.Unlock()
	if !active {
		return 0, ErrNotActive
	}

	id, err := c.bus.Publish(ctx, store.NotificationEvent{
		Kind:        kind,
		Title:       title,
		Body:        body,
		Payload:     payload,
		SenderToken: token,
	})
	if err != nil {
		return 0, err
	}

	ev := store.NotificationEvent{
		ID:          id,
		Kind:        kind,
		Title:       title,
		Body:        body,
		Payload:     payload,
		SenderToken: token,
	}
	if rerr := c.rend.Render(ctx, ev); rerr != nil {
		c.log.Warn("origin-side render failed", logx.Int64("event", id), logx.Err(rerr))
	}
	return id, nil
}

// onEvent runs on the subscription watcher goroutine. It must not block
// the change-delivery path, so rendering and claiming are dispatched as
// an independent task with its own error boundary; failures for one
// event never prevent processing of subsequent events.
func (c *Controller) onEvent(sup *supervisor.Supervisor, ev store.NotificationEvent) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if !delivery.ShouldDeliver(ev, token) {
		c.log.Debug("self event filtered", logx.Int64("event", ev.ID))
		return
	}

	sup.Go0("event."+strconv.FormatInt(ev.ID, 10), func(ctx context.Context) {
		if err := c.rend.Render(ctx, ev); err != nil {
			c.log.Warn("render failed", logx.Int64("event", ev.ID), logx.Err(err))
		}
		// Mark seen even when rendering failed: the event was delivered
		// to this device, and claims are advisory (last-write-wins).
		c.claimer.Claim(ctx, ev.ID, token)
	})
}
