package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store.
//
// Used by tests and by single-process runs where the "shared" store has
// only one client. Its change feed pulses synchronously on every write,
// so subscribers observe insertions without polling.
type Memory struct {
	mu      sync.Mutex
	devices []DeviceRecord
	events  []NotificationEvent
	nextID  int64

	feed *feed
}

func NewMemory() *Memory {
	return &Memory{feed: newFeed()}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Changes(buffer int) (<-chan struct{}, func()) {
	return m.feed.subscribe(buffer)
}

func (m *Memory) InsertDevice(ctx context.Context, rec DeviceRecord) error {
	_ = ctx
	now := time.Now()
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = now
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = rec.RegisteredAt
	}
	if rec.Capability == "" {
		rec.Capability = CapabilityUnknown
	}
	m.mu.Lock()
	m.devices = append(m.devices, rec)
	m.mu.Unlock()
	m.feed.pulse()
	return nil
}

func (m *Memory) UpdateDevice(ctx context.Context, rec DeviceRecord) error {
	_ = ctx
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now()
	}
	m.mu.Lock()
	found := false
	for i := range m.devices {
		if m.devices[i].Token == rec.Token {
			m.devices[i].UserID = rec.UserID
			m.devices[i].Capability = rec.Capability
			m.devices[i].Active = rec.Active
			m.devices[i].LastSeen = rec.LastSeen
			found = true
		}
	}
	m.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	m.feed.pulse()
	return nil
}

func (m *Memory) GetDevice(ctx context.Context, token string) (DeviceRecord, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	// Most recent record wins when the registration race left duplicates.
	for i := len(m.devices) - 1; i >= 0; i-- {
		if m.devices[i].Token == token {
			return m.devices[i], true, nil
		}
	}
	return DeviceRecord{}, false, nil
}

func (m *Memory) ListActiveDevices(ctx context.Context) ([]DeviceRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeviceRecord
	for _, d := range m.devices {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (m *Memory) MarkDeviceInactive(ctx context.Context, token string, at time.Time) error {
	_ = ctx
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	for i := range m.devices {
		if m.devices[i].Token == token {
			m.devices[i].Active = false
			m.devices[i].LastSeen = at
		}
	}
	m.mu.Unlock()
	m.feed.pulse()
	return nil
}

func (m *Memory) InsertEvent(ctx context.Context, ev NotificationEvent) (int64, error) {
	_ = ctx
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.ExpiresAt.IsZero() {
		ev.ExpiresAt = ev.CreatedAt.Add(24 * time.Hour)
	}
	ev.Processed = false
	ev.ProcessedAt = time.Time{}
	ev.ProcessedBy = ""

	m.mu.Lock()
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, ev)
	m.mu.Unlock()
	m.feed.pulse()
	return ev.ID, nil
}

func (m *Memory) UnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]NotificationEvent, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []NotificationEvent
	for _, ev := range m.events {
		if ev.Processed || ev.Expired(now) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkProcessed(ctx context.Context, id int64, deviceToken string, at time.Time) error {
	_ = ctx
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	found := false
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Processed = true
			m.events[i].ProcessedAt = at
			m.events[i].ProcessedBy = deviceToken
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	m.feed.pulse()
	return nil
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var removed int64
	for _, ev := range m.events {
		if ev.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return removed, nil
}
