package bus

import (
	"context"
	"sync"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

// Subscription is the handle for one live query. Cancel is idempotent
// and does not return until the watcher has stopped, so no callback
// fires after Cancel returns.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe opens a live query over the unconsumed-event window and
// invokes onEvent once per row that newly enters the result set. The
// snapshot of rows already in the window at subscribe time is NOT
// replayed: only additions are delivered.
//
// onEvent runs on the watcher goroutine and must not block; dispatch
// heavy work (rendering, claiming) elsewhere.
func (b *Bus) Subscribe(parent context.Context, onEvent func(store.NotificationEvent)) (*Subscription, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	// Seed the seen-set with the current snapshot so pre-existing
	// unconsumed rows are not reported as new.
	seen := map[int64]time.Time{}
	now := time.Now()
	snapshot, err := b.store.UnprocessedEvents(ctx, now, b.cfg.Window)
	if err != nil {
		cancel()
		return nil, err
	}
	for _, ev := range snapshot {
		seen[ev.ID] = now
	}

	changes, unsub := b.store.Changes(1)

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer unsub()

		ticker := time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
			case <-ticker.C:
			}
			b.deliverNew(ctx, seen, onEvent)
		}
	}()

	b.log.Debug("subscription opened", logx.Int("window", b.cfg.Window), logx.Int("snapshot", len(snapshot)))
	return sub, nil
}

// deliverNew re-runs the window query and invokes onEvent for rows not
// seen before. Changes arrive in commit order, not creation order, under
// concurrent writers; events are self-contained so that is fine.
func (b *Bus) deliverNew(ctx context.Context, seen map[int64]time.Time, onEvent func(store.NotificationEvent)) {
	now := time.Now()
	evs, err := b.store.UnprocessedEvents(ctx, now, b.cfg.Window)
	if err != nil {
		if ctx.Err() == nil {
			b.log.Warn("live query failed", logx.Err(err))
		}
		return
	}

	// Oldest-first keeps per-batch delivery roughly chronological.
	for i := len(evs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		ev := evs[i]
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = now
		onEvent(ev)
	}

	// Entries older than the TTL can never re-enter the window; drop
	// them so the seen-set stays bounded on long-running subscriptions.
	cutoff := now.Add(-b.cfg.TTL)
	for id, at := range seen {
		if at.Before(cutoff) {
			delete(seen, id)
		}
	}
}
