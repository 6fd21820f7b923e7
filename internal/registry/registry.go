package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

const tokenFileName = "device_token"

// Registry tracks device identities in the shared store and owns the
// locally persisted device token.
type Registry struct {
	store   store.Store
	log     logx.Logger
	dataDir string
}

func New(st store.Store, dataDir string, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{store: st, log: log, dataDir: dataDir}
}

// EnsureDeviceIdentity returns the locally persisted stable device token,
// generating and persisting one first if absent. Idempotent across
// process restarts.
func (r *Registry) EnsureDeviceIdentity() (string, error) {
	path := filepath.Join(r.dataDir, tokenFileName)

	if b, err := os.ReadFile(path); err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	}

	// Time component plus random suffix: unique with overwhelming
	// probability, no cryptographic strength required.
	tok := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())

	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return "", err
	}
	// Persist before returning so a crash cannot hand out a token that
	// the next start would regenerate differently.
	if err := os.WriteFile(path, []byte(tok+"\n"), 0o600); err != nil {
		return "", err
	}
	r.log.Info("device identity generated", logx.String("token", tok))
	return tok, nil
}

// RegisterOrRefresh upserts the device record for token.
//
// This is a read-then-write sequence with no transactional guarantee:
// two concurrent registrations of the same token may both miss the read
// and insert two records. Accepted limitation; the store does not
// enforce token uniqueness.
func (r *Registry) RegisterOrRefresh(ctx context.Context, token, userID string, capability store.CapabilityState) error {
	now := time.Now()

	_, found, err := r.store.GetDevice(ctx, token)
	if err != nil {
		return fmt.Errorf("registry: lookup %s: %w", token, err)
	}

	rec := store.DeviceRecord{
		Token:      token,
		UserID:     userID,
		Capability: capability,
		Active:     true,
		LastSeen:   now,
	}
	if found {
		if err := r.store.UpdateDevice(ctx, rec); err != nil {
			return fmt.Errorf("registry: refresh %s: %w", token, err)
		}
		r.log.Debug("device refreshed", logx.String("token", token), logx.String("capability", string(capability)))
		return nil
	}

	rec.RegisteredAt = now
	if err := r.store.InsertDevice(ctx, rec); err != nil {
		return fmt.Errorf("registry: register %s: %w", token, err)
	}
	r.log.Info("device registered", logx.String("token", token), logx.String("user", userID))
	return nil
}

// ListActiveDevices is a diagnostics/administration query; delivery is
// broadcast-by-subscription and never enumerates recipients.
func (r *Registry) ListActiveDevices(ctx context.Context) ([]store.DeviceRecord, error) {
	return r.store.ListActiveDevices(ctx)
}

// MarkInactive flags the device as inactive on teardown. Best-effort:
// failures are logged, not escalated.
func (r *Registry) MarkInactive(ctx context.Context, token string) {
	if err := r.store.MarkDeviceInactive(ctx, token, time.Now()); err != nil {
		r.log.Warn("mark inactive failed", logx.String("token", token), logx.Err(err))
	}
}
