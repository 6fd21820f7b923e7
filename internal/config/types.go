package config

type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Device        DeviceConfig        `json:"device"`
	Bus           BusConfig           `json:"bus,omitempty"`
	Notifications NotificationsConfig `json:"notifications,omitempty"`
	Janitor       JanitorConfig       `json:"janitor,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the shared store backing the notification bus.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "/srv/shared/leadnotify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DeviceConfig controls local device identity.
//
// DataDir holds the persisted device token. UserID is a best-effort
// label attached to the registry record; it is not authenticated.
type DeviceConfig struct {
	DataDir string `json:"data_dir"`
	UserID  string `json:"user_id,omitempty"`
}

// BusConfig controls the live-query subscription window.
//
// All durations are Go duration strings (e.g. "2s", "24h").
//
// Defaults (when fields are omitted/zero):
//   - window: 50
//   - ttl: "24h"
//   - poll_interval: "2s"
type BusConfig struct {
	Window       int    `json:"window,omitempty"`
	TTL          string `json:"ttl,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
}

// NotificationsConfig controls the host notification surface.
type NotificationsConfig struct {
	Enabled    bool   `json:"enabled"`
	AppName    string `json:"app_name,omitempty"`
	Icon       string `json:"icon,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// JanitorConfig controls garbage collection of expired events.
// Schedule is a cron spec (e.g. "@hourly", "*/30 * * * *").
type JanitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}
