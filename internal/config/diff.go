package config

import (
	"reflect"
	"strings"

	"diarybot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// log fields describing the new values. Secrets are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	// Token excluded on purpose.
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog || !reflect.DeepEqual(ot.AdminUserIDs, nt.AdminUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.admins", len(nt.AdminUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Portal, newCfg.Portal) {
		changed = append(changed, "portal")
		attrs = append(attrs, logx.String("portal.base_url", newCfg.Portal.BaseURL))
	}
	if oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "cache")
	}
	if oldCfg.Refresh != newCfg.Refresh {
		changed = append(changed, "refresh")
	}
	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Schedule),
			logx.String("digest.timezone", newCfg.Digest.Timezone),
		)
	}
	if oldCfg.Homework != newCfg.Homework {
		changed = append(changed, "homework")
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		changed = append(changed, "task_engine")
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	// Token excluded on purpose.
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.Bool("debug.enabled", newCfg.Debug.Enabled), logx.String("debug.addr", newCfg.Debug.Addr))
	}
	return changed, attrs
}

// NeedsRestart reports whether any changed section is only read at
// startup.
func NeedsRestart(changed []string) bool {
	for _, s := range changed {
		switch s {
		case "telegram", "portal", "task_engine", "storage", "cache", "refresh", "debug":
			return true
		}
	}
	return false
}
