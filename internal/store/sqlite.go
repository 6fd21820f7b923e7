package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "leadnotify/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore persists both collections in a single SQLite file.
//
// The file is expected to live on a path shared between devices (synced
// directory, network mount). SQLite in WAL mode tolerates concurrent
// readers with a single writer, which matches the low write rate here.
type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	feed *feed
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, feed: newFeed()}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Changes(buffer int) (<-chan struct{}, func()) {
	return s.feed.subscribe(buffer)
}

// ---- notification_devices ----

func (s *sqliteStore) InsertDevice(ctx context.Context, rec DeviceRecord) error {
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now()
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = rec.RegisteredAt
	}
	if rec.Capability == "" {
		rec.Capability = CapabilityUnknown
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_devices(device_token, user_id, capability, active, registered_at, last_seen)
		 VALUES(?,?,?,?,?,?)`,
		rec.Token, rec.UserID, string(rec.Capability), boolInt(rec.Active),
		rec.RegisteredAt.UnixMilli(), rec.LastSeen.UnixMilli(),
	)
	if err == nil {
		s.feed.pulse()
	}
	return err
}

func (s *sqliteStore) UpdateDevice(ctx context.Context, rec DeviceRecord) error {
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_devices
		 SET user_id = ?, capability = ?, active = ?, last_seen = ?
		 WHERE device_token = ?`,
		rec.UserID, string(rec.Capability), boolInt(rec.Active), rec.LastSeen.UnixMilli(), rec.Token,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.feed.pulse()
	return nil
}

func (s *sqliteStore) GetDevice(ctx context.Context, token string) (DeviceRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_token, user_id, capability, active, registered_at, last_seen
		 FROM notification_devices WHERE device_token = ?
		 ORDER BY id DESC LIMIT 1`, token)
	rec, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceRecord{}, false, nil
	}
	if err != nil {
		return DeviceRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) ListActiveDevices(ctx context.Context) ([]DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_token, user_id, capability, active, registered_at, last_seen
		 FROM notification_devices WHERE active = 1 ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		rec, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkDeviceInactive(ctx context.Context, token string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_devices SET active = 0, last_seen = ? WHERE device_token = ?`,
		at.UnixMilli(), token,
	)
	if err == nil {
		s.feed.pulse()
	}
	return err
}

// ---- global_notifications ----

func (s *sqliteStore) InsertEvent(ctx context.Context, ev NotificationEvent) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.ExpiresAt.IsZero() {
		ev.ExpiresAt = ev.CreatedAt.Add(24 * time.Hour)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO global_notifications(kind, title, body, payload, sender_token, created_at, processed, expires_at)
		 VALUES(?,?,?,?,?,?,0,?)`,
		ev.Kind, ev.Title, ev.Body, nullStr(string(ev.Payload)), ev.SenderToken,
		ev.CreatedAt.UnixMilli(), ev.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.feed.pulse()
	return id, nil
}

func (s *sqliteStore) UnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]NotificationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, title, body, payload, sender_token, created_at, processed, processed_at, processed_by, expires_at
		 FROM global_notifications
		 WHERE processed = 0 AND expires_at > ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkProcessed(ctx context.Context, id int64, deviceToken string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	// Unconditional, last-write-wins: a concurrent claim by another
	// device simply overwrites the claim metadata.
	res, err := s.db.ExecContext(ctx,
		`UPDATE global_notifications SET processed = 1, processed_at = ?, processed_by = ? WHERE id = ?`,
		at.UnixMilli(), deviceToken, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.feed.pulse()
	return nil
}

func (s *sqliteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM global_notifications WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- scanning ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(r rowScanner) (DeviceRecord, error) {
	var (
		rec        DeviceRecord
		capability string
		active     int
		regMS      int64
		seenMS     int64
	)
	if err := r.Scan(&rec.Token, &rec.UserID, &capability, &active, &regMS, &seenMS); err != nil {
		return DeviceRecord{}, err
	}
	rec.Capability = CapabilityState(capability)
	rec.Active = active != 0
	rec.RegisteredAt = time.UnixMilli(regMS)
	rec.LastSeen = time.UnixMilli(seenMS)
	return rec, nil
}

func scanEvent(r rowScanner) (NotificationEvent, error) {
	var (
		ev          NotificationEvent
		payload     sql.NullString
		createdMS   int64
		processed   int
		processedMS sql.NullInt64
		processedBy sql.NullString
		expiresMS   int64
	)
	if err := r.Scan(&ev.ID, &ev.Kind, &ev.Title, &ev.Body, &payload, &ev.SenderToken,
		&createdMS, &processed, &processedMS, &processedBy, &expiresMS); err != nil {
		return NotificationEvent{}, err
	}
	if payload.Valid {
		ev.Payload = []byte(payload.String)
	}
	ev.CreatedAt = time.UnixMilli(createdMS)
	ev.Processed = processed != 0
	if processedMS.Valid {
		ev.ProcessedAt = time.UnixMilli(processedMS.Int64)
	}
	ev.ProcessedBy = processedBy.String
	ev.ExpiresAt = time.UnixMilli(expiresMS)
	return ev, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
