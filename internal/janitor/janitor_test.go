package janitor

import (
	"context"
	"testing"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

func TestSweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()

	_, _ = st.InsertEvent(ctx, store.NotificationEvent{Kind: "k", Title: "stale", SenderToken: "a",
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)})
	_, _ = st.InsertEvent(ctx, store.NotificationEvent{Kind: "k", Title: "live", SenderToken: "a",
		CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)})

	j, err := New(st, "", logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	removed, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	evs, _ := st.UnprocessedEvents(ctx, now, 50)
	if len(evs) != 1 || evs[0].Title != "live" {
		t.Fatalf("unexpected survivors: %+v", evs)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	if _, err := New(store.NewMemory(), "every full moon", logx.Nop()); err == nil {
		t.Fatal("expected error for malformed cron spec")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	j, err := New(store.NewMemory(), "@hourly", logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Start()
	j.Stop()
}
