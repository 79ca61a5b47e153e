package config

import (
	"strings"

	"remindd/pkg/logx"
)

// SummarizeChange returns the changed sections of a reload and safe
// structured attrs for logging. Secrets (the push token) are reduced to
// a set/unset bit.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.poll_interval", strings.TrimSpace(newCfg.Engine.PollInterval)),
			logx.Int("engine.batch_size", newCfg.Engine.BatchSize),
			logx.Int("engine.horizon_days", newCfg.Engine.HorizonDays),
		)
	}

	if oldCfg.Push != newCfg.Push {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.String("push.driver", strings.TrimSpace(newCfg.Push.Driver)),
			logx.Int("push.rate_per_sec", newCfg.Push.RatePerSec),
			logx.Bool("push.token_set", strings.TrimSpace(newCfg.Push.Telegram.Token) != ""),
		)
	}

	return changed, attrs
}
