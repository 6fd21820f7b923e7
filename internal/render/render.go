package render

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"leadnotify/internal/host"
	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

var ErrNoSurface = errors.New("render: no rendering surface acquired")

type Config struct {
	Icon       string
	RatePerSec int
}

// Renderer turns bus events into host-level user notifications.
//
// It prefers the background surface acquired during initialization and
// falls back to the foreground primitive. A render failure for one event
// never affects the delivery state of other events.
type Renderer struct {
	host    host.Host
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter

	// Negotiated capability state; rendering is a no-op unless granted.
	capability atomic.Value // store.CapabilityState
}

func New(h host.Host, cfg Config, log logx.Logger) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	r := &Renderer{
		host: h,
		log:  log,
		cfg:  cfg,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	r.capability.Store(store.CapabilityUnknown)
	return r
}

// SetCapability records the outcome of capability negotiation.
func (r *Renderer) SetCapability(s store.CapabilityState) {
	r.capability.Store(s)
}

func (r *Renderer) Capability() store.CapabilityState {
	v, _ := r.capability.Load().(store.CapabilityState)
	return v
}

// Render shows one notification for the event.
func (r *Renderer) Render(ctx context.Context, ev store.NotificationEvent) error {
	if s := r.Capability(); s != store.CapabilityGranted {
		r.log.Debug("render skipped", logx.Int64("event", ev.ID), logx.String("capability", string(s)))
		return nil
	}

	// Storm guard: bound how fast notifications hit the host.
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	n := host.Notification{
		Title:   ev.Title,
		Body:    ev.Body,
		Icon:    r.cfg.Icon,
		Tag:     fmt.Sprintf("%s-%d", ev.Kind, ev.ID),
		Payload: ev.Payload,
	}

	if bg := r.host.Background(); bg != nil {
		if err := bg.Notify(ctx, n); err == nil {
			return nil
		} else {
			r.log.Warn("background surface failed", logx.Int64("event", ev.ID), logx.String("surface", bg.Name()), logx.Err(err))
		}
	}
	if fg := r.host.Foreground(); fg != nil {
		if err := fg.Notify(ctx, n); err != nil {
			return fmt.Errorf("render event %d via %s: %w", ev.ID, fg.Name(), err)
		}
		return nil
	}
	return ErrNoSurface
}
