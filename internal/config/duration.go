package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration reads the duration under config key. On top of Go syntax
// ("90s", "10m", "48h") it takes whole days ("30d"), which is how
// homework.retention and cache.ttl are usually written. Empty or zero
// yields def.
func parseDuration(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}

	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("config %s: %q is not a whole number of days", key, raw)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("config %s: %q is not a duration (e.g. 20s, 10m, 48h, 30d)", key, raw)
		}
	}

	switch {
	case d < 0:
		return 0, fmt.Errorf("config %s: %q is negative", key, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}
