package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

type collector struct {
	mu     sync.Mutex
	events []store.NotificationEvent
}

func (c *collector) add(ev store.NotificationEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Title
	}
	return out
}

func TestPublishAssignsWindowFields(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	b := New(st, Config{TTL: time.Hour}, logx.Nop())

	before := time.Now()
	id, err := b.Publish(context.Background(), store.NotificationEvent{
		Kind: "custom", Title: "t", SenderToken: "dev-a",
		// Claim fields set by a confused caller must be wiped.
		Processed: true, ProcessedBy: "dev-x",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == 0 {
		t.Fatal("no id assigned")
	}

	evs, err := st.UnprocessedEvents(context.Background(), time.Now(), 50)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("event not in window: %+v", evs)
	}
	ev := evs[0]
	if ev.Processed || ev.ProcessedBy != "" {
		t.Fatalf("claim fields survived publish: %+v", ev)
	}
	if ev.ExpiresAt.Before(before.Add(time.Hour)) {
		t.Fatalf("TTL not applied: %v", ev.ExpiresAt)
	}
}

func TestSubscribeSnapshotNotReplayed(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	b := New(st, Config{PollInterval: 50 * time.Millisecond}, logx.Nop())
	ctx := context.Background()

	for _, title := range []string{"pre1", "pre2", "pre3"} {
		if _, err := b.Publish(ctx, store.NotificationEvent{Kind: "custom", Title: title, SenderToken: "a"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	var c collector
	sub, err := b.Subscribe(ctx, c.add)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	if _, err := b.Publish(ctx, store.NotificationEvent{Kind: "custom", Title: "new", SenderToken: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return c.count() >= 1 })
	// Let a couple of poll cycles pass; the snapshot must stay silent.
	time.Sleep(150 * time.Millisecond)
	if got := c.titles(); len(got) != 1 || got[0] != "new" {
		t.Fatalf("delivered = %v, want only [new]", got)
	}
}

func TestSubscribeDeliversEachAdditionOnce(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	b := New(st, Config{PollInterval: 50 * time.Millisecond}, logx.Nop())
	ctx := context.Background()

	var c collector
	sub, err := b.Subscribe(ctx, c.add)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	const n = 10
	for i := 0; i < n; i++ {
		if _, err := b.Publish(ctx, store.NotificationEvent{Kind: "custom", Title: "e", SenderToken: "a"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return c.count() >= n })
	time.Sleep(150 * time.Millisecond)
	if c.count() != n {
		t.Fatalf("delivered %d events, want exactly %d", c.count(), n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := map[int64]bool{}
	for _, ev := range c.events {
		if ids[ev.ID] {
			t.Fatalf("event %d delivered twice", ev.ID)
		}
		ids[ev.ID] = true
	}
}

// Backlog larger than the window: only the newest Window rows are
// observable; older rows never reach the callback until the window drains.
func TestWindowCapStarvesOldest(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	b := New(st, Config{Window: 50}, logx.Nop())
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 60; i++ {
		_, err := st.InsertEvent(ctx, store.NotificationEvent{
			Kind: "custom", Title: "e", SenderToken: "a",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			ExpiresAt: base.Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	var c collector
	seen := map[int64]time.Time{}
	b.deliverNew(ctx, seen, c.add)

	if c.count() != 50 {
		t.Fatalf("delivered %d, want 50", c.count())
	}
	c.mu.Lock()
	for _, ev := range c.events {
		if ev.CreatedAt.Before(base.Add(10 * time.Second)) {
			t.Fatalf("event beyond the window cap was delivered: %v", ev.CreatedAt)
		}
	}
	c.mu.Unlock()

	// Claiming makes room: the displaced oldest rows re-enter the window.
	for _, ev := range c.events[:10] {
		if err := st.MarkProcessed(ctx, ev.ID, "dev-b", time.Now()); err != nil {
			t.Fatalf("MarkProcessed: %v", err)
		}
	}
	b.deliverNew(ctx, seen, c.add)
	if c.count() != 60 {
		t.Fatalf("delivered %d after drain, want 60", c.count())
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	b := New(st, Config{PollInterval: 30 * time.Millisecond}, logx.Nop())
	ctx := context.Background()

	var c collector
	sub, err := b.Subscribe(ctx, c.add)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sub.Cancel()
	sub.Cancel() // idempotent

	if _, err := b.Publish(ctx, store.NotificationEvent{Kind: "custom", Title: "late", SenderToken: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if c.count() != 0 {
		t.Fatalf("callback fired after Cancel returned: %v", c.titles())
	}
}
