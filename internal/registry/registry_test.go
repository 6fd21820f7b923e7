package registry

import (
	"context"
	"testing"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

func TestEnsureDeviceIdentityStableAcrossRestarts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := store.NewMemory()

	r1 := New(st, dir, logx.Nop())
	tok1, err := r1.EnsureDeviceIdentity()
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity: %v", err)
	}
	if tok1 == "" {
		t.Fatal("empty token")
	}

	// A fresh Registry over the same data dir simulates a process restart.
	r2 := New(st, dir, logx.Nop())
	tok2, err := r2.EnsureDeviceIdentity()
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity (restart): %v", err)
	}
	if tok2 != tok1 {
		t.Fatalf("token changed across restart: %q != %q", tok2, tok1)
	}
}

func TestEnsureDeviceIdentityDistinctPerDataDir(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()

	a, err := New(st, t.TempDir(), logx.Nop()).EnsureDeviceIdentity()
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity: %v", err)
	}
	b, err := New(st, t.TempDir(), logx.Nop()).EnsureDeviceIdentity()
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity: %v", err)
	}
	if a == b {
		t.Fatalf("two data dirs produced the same token %q", a)
	}
}

func TestRegisterOrRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	r := New(st, t.TempDir(), logx.Nop())

	if err := r.RegisterOrRefresh(ctx, "dev-a", "alice", store.CapabilityGranted); err != nil {
		t.Fatalf("register: %v", err)
	}
	devices, err := r.ListActiveDevices(ctx)
	if err != nil {
		t.Fatalf("ListActiveDevices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	first := devices[0]
	if first.UserID != "alice" || first.Capability != store.CapabilityGranted || !first.Active {
		t.Fatalf("unexpected record: %+v", first)
	}

	// Second call refreshes instead of inserting a duplicate.
	if err := r.RegisterOrRefresh(ctx, "dev-a", "alice", store.CapabilityDenied); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	devices, _ = r.ListActiveDevices(ctx)
	if len(devices) != 1 {
		t.Fatalf("refresh inserted a duplicate: %d records", len(devices))
	}
	if devices[0].Capability != store.CapabilityDenied {
		t.Fatalf("capability not refreshed: %+v", devices[0])
	}
	if devices[0].LastSeen.Before(first.LastSeen) {
		t.Fatalf("last_seen went backwards")
	}
}

func TestMarkInactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	r := New(st, t.TempDir(), logx.Nop())

	if err := r.RegisterOrRefresh(ctx, "dev-a", "alice", store.CapabilityGranted); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.MarkInactive(ctx, "dev-a")

	devices, err := r.ListActiveDevices(ctx)
	if err != nil {
		t.Fatalf("ListActiveDevices: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("device still active after MarkInactive: %+v", devices)
	}

	// Unknown token must not escalate.
	r.MarkInactive(ctx, "no-such-device")
}
