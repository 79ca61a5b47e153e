package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Engine controls the scheduling core: materialization window,
	// reminder firing loop, and notification delivery.
	Engine EngineConfig `json:"engine"`

	Push PushConfig `json:"push,omitempty"`
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

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy handler).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig tunes the scheduling core.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "15s"
//   - batch_size: 100
//   - dispatch_timeout: "10s"
//   - horizon_days: 30
//   - retention_days: 30
type EngineConfig struct {
	// PollInterval is how often the firing loop claims due reminders.
	PollInterval string `json:"poll_interval,omitempty"`
	// BatchSize caps how many reminders one claim takes.
	BatchSize int `json:"batch_size,omitempty"`
	// DispatchTimeout bounds delivery of a single claimed reminder.
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	// HorizonDays is the forward materialization window for series.
	HorizonDays int `json:"horizon_days,omitempty"`
	// RetentionDays is how long read notifications are kept before purge.
	RetentionDays int `json:"retention_days,omitempty"`
}

// PushConfig selects and configures the best-effort push channel.
// Driver is "none" (default) or "telegram".
type PushConfig struct {
	Driver string `json:"driver,omitempty"`
	// RatePerSec throttles push deliveries overall.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// Timeout bounds delivery to a single subscriber.
	Timeout  string         `json:"timeout,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
}
