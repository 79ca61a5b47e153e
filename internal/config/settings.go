package config

import (
	"fmt"
	"strings"
	"time"
)

// Push drivers.
const (
	PushDriverNone     = "none"
	PushDriverTelegram = "telegram"
)

// EngineSettings is EngineConfig with durations parsed and defaults
// applied.
type EngineSettings struct {
	PollInterval    time.Duration
	BatchSize       int
	DispatchTimeout time.Duration
	HorizonDays     int
	RetentionDays   int
}

func (c *Config) EngineSettings() (EngineSettings, error) {
	out := EngineSettings{
		BatchSize:     c.Engine.BatchSize,
		HorizonDays:   c.Engine.HorizonDays,
		RetentionDays: c.Engine.RetentionDays,
	}
	var err error
	if out.PollInterval, err = ParseDurationOrDefault("engine.poll_interval", c.Engine.PollInterval, 15*time.Second); err != nil {
		return out, err
	}
	if out.DispatchTimeout, err = ParseDurationOrDefault("engine.dispatch_timeout", c.Engine.DispatchTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.HorizonDays <= 0 {
		out.HorizonDays = 30
	}
	if out.RetentionDays <= 0 {
		out.RetentionDays = 30
	}
	return out, nil
}

// PushSettings is PushConfig with durations parsed and defaults applied.
type PushSettings struct {
	Driver        string
	RatePerSec    int
	Timeout       time.Duration
	TelegramToken string
}

func (c *Config) PushSettings() (PushSettings, error) {
	out := PushSettings{
		Driver:        strings.TrimSpace(c.Push.Driver),
		RatePerSec:    c.Push.RatePerSec,
		TelegramToken: strings.TrimSpace(c.Push.Telegram.Token),
	}
	if out.Driver == "" {
		out.Driver = PushDriverNone
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 10
	}
	var err error
	if out.Timeout, err = ParseDurationOrDefault("push.timeout", c.Push.Timeout, 5*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

// Validate rejects configs the daemon could not start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := cfg.EngineSettings(); err != nil {
		return err
	}
	ps, err := cfg.PushSettings()
	if err != nil {
		return err
	}
	switch ps.Driver {
	case PushDriverNone:
	case PushDriverTelegram:
		if ps.TelegramToken == "" {
			return fmt.Errorf("push.telegram.token is required for the telegram driver")
		}
	default:
		return fmt.Errorf("push.driver: unknown driver %q", ps.Driver)
	}
	return nil
}
