package delivery

import (
	"context"
	"testing"
	"time"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

func TestShouldDeliver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		sender string
		local  string
		want   bool
	}{
		{"other device", "dev-a", "dev-b", true},
		{"own event filtered", "dev-a", "dev-a", false},
		{"unregistered local token", "dev-a", "", true},
		{"ephemeral ctl sender", "ctl-123", "dev-a", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := store.NotificationEvent{SenderToken: tc.sender}
			if got := ShouldDeliver(ev, tc.local); got != tc.want {
				t.Fatalf("ShouldDeliver(sender=%q, local=%q) = %v, want %v", tc.sender, tc.local, got, tc.want)
			}
		})
	}
}

func TestClaimRemovesEventFromWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	c := NewClaimer(st, logx.Nop())

	id, err := st.InsertEvent(ctx, store.NotificationEvent{Kind: "custom", Title: "t", SenderToken: "dev-a"})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	c.Claim(ctx, id, "dev-b")

	evs, err := st.UnprocessedEvents(ctx, time.Now(), 50)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("claimed event still unconsumed: %+v", evs)
	}
}

func TestClaimFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	c := NewClaimer(st, logx.Nop())

	// Absent id: logged, not escalated, must not panic.
	c.Claim(context.Background(), 424242, "dev-b")
}
