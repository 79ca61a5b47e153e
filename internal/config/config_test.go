package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug"},
		"storage": {"path": "/var/lib/remindd/remindd.db", "busy_timeout": "5s"},
		"engine": {"poll_interval": "30s", "batch_size": 50},
		"push": {"driver": "telegram", "telegram": {"token": "tok"}}
	}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Storage.Path != "/var/lib/remindd/remindd.db" {
		t.Errorf("parsed = %+v", cfg)
	}
	if cfg.Engine.BatchSize != 50 || cfg.Push.Telegram.Token != "tok" {
		t.Errorf("parsed = %+v", cfg)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"storage": {"path": "x"}, "surprise": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
	path = writeFile(t, "config.json", `{"storage": {"path": "x", "wal": true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown nested field accepted")
	}
}

func TestParseRejectsTrailingContent(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"storage": {"path": "x"}} {"more": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  console: true
storage:
  path: ./remindd.db
engine:
  horizon_days: 14
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if !cfg.Logging.Console || cfg.Storage.Path != "./remindd.db" || cfg.Engine.HorizonDays != 14 {
		t.Errorf("parsed = %+v", cfg)
	}
}

func TestEngineSettingsDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	es, err := cfg.EngineSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if es.PollInterval != 15*time.Second || es.DispatchTimeout != 10*time.Second {
		t.Errorf("durations = %+v", es)
	}
	if es.BatchSize != 100 || es.HorizonDays != 30 || es.RetentionDays != 30 {
		t.Errorf("counts = %+v", es)
	}
}

func TestPushSettingsDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	ps, err := cfg.PushSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if ps.Driver != PushDriverNone || ps.RatePerSec != 10 || ps.Timeout != 5*time.Second {
		t.Errorf("defaults = %+v", ps)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		var c Config
		c.Storage.Path = "./remindd.db"
		return &c
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"minimal ok", func(*Config) {}, ""},
		{"missing storage path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"bad busy timeout", func(c *Config) { c.Storage.BusyTimeout = "soon" }, "busy_timeout"},
		{"bad poll interval", func(c *Config) { c.Engine.PollInterval = "every minute" }, "poll_interval"},
		{"telegram without token", func(c *Config) { c.Push.Driver = PushDriverTelegram }, "token"},
		{"telegram with token", func(c *Config) {
			c.Push.Driver = PushDriverTelegram
			c.Push.Telegram.Token = "tok"
		}, ""},
		{"unknown driver", func(c *Config) { c.Push.Driver = "carrier-pigeon" }, "unknown driver"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("err = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	oldCfg.Storage.Path = "a.db"
	newCfg := &Config{}
	newCfg.Storage.Path = "b.db"
	newCfg.Logging.Level = "debug"

	sections, _ := SummarizeChange(oldCfg, newCfg)
	joined := strings.Join(sections, ",")
	for _, want := range []string{"storage", "logging"} {
		if !strings.Contains(joined, want) {
			t.Errorf("changed sections %v missing %q", sections, want)
		}
	}
	if strings.Contains(joined, "push") {
		t.Errorf("unchanged section reported: %v", sections)
	}
}
