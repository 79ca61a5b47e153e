package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration knobs arrive as Go duration strings ("500ms", "15s", "1m").
// An empty or whitespace field means unset: zero from ParseDurationField,
// the caller's default from ParseDurationOrDefault. Negative durations
// are always rejected; path names the offending field in the error.

func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
