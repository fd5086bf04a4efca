package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTimezone   = "Europe/Moscow"
	DefaultSweepEvery = "every:1h"
	DefaultReapEvery  = "every:1m"
	DefaultPruneEvery = "cron:0 4 * * *"
	DefaultDigestSpec = "* * * * *"
)

// Settings is Config with durations parsed and defaults applied.
type Settings struct {
	PollTimeout   time.Duration
	AlertChatID   int64
	AlertThreadID int

	SettleList     time.Duration
	SettlePage     time.Duration
	RequestTimeout time.Duration

	CacheTTL   time.Duration
	SweepEvery string

	RefreshTimeout time.Duration
	IdleTimeout    time.Duration
	Cooldown       time.Duration
	ReapEvery      string

	DigestSchedule string
	Location       *time.Location
	DigestRate     float64

	HomeworkRetention time.Duration
	PruneEvery        string

	StorageBusyTimeout time.Duration
}

// Resolve parses every duration and timezone in cfg.
func Resolve(cfg *Config) (Settings, error) {
	var s Settings
	var err error
	dur := func(dst *time.Duration, path, raw string, def time.Duration) {
		if err != nil {
			return
		}
		*dst, err = parseDuration(path, raw, def)
	}
	dur(&s.PollTimeout, "telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	dur(&s.SettleList, "portal.settle_list", cfg.Portal.SettleList, 5*time.Second)
	dur(&s.SettlePage, "portal.settle_page", cfg.Portal.SettlePage, 7*time.Second)
	dur(&s.RequestTimeout, "portal.request_timeout", cfg.Portal.RequestTimeout, 15*time.Second)
	dur(&s.CacheTTL, "cache.ttl", cfg.Cache.TTL, 48*time.Hour)
	dur(&s.RefreshTimeout, "refresh.timeout", cfg.Refresh.Timeout, 20*time.Second)
	dur(&s.IdleTimeout, "refresh.idle_timeout", cfg.Refresh.IdleTimeout, 10*time.Minute)
	dur(&s.Cooldown, "refresh.cooldown", cfg.Refresh.Cooldown, 5*time.Minute)
	dur(&s.HomeworkRetention, "homework.retention", cfg.Homework.Retention, 30*24*time.Hour)
	dur(&s.StorageBusyTimeout, "storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return Settings{}, err
	}

	s.AlertChatID, s.AlertThreadID, err = ParseGroupLog(cfg.Telegram.GroupLog)
	if err != nil {
		return Settings{}, err
	}
	if cfg.Logging.Telegram.ThreadID > 0 {
		s.AlertThreadID = cfg.Logging.Telegram.ThreadID
	}

	tz := strings.TrimSpace(cfg.Digest.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if s.Location, err = time.LoadLocation(tz); err != nil {
		return Settings{}, fmt.Errorf("digest.timezone: %w", err)
	}

	s.SweepEvery = orDefault(cfg.Cache.SweepEvery, DefaultSweepEvery)
	s.ReapEvery = orDefault(cfg.Refresh.ReapEvery, DefaultReapEvery)
	s.PruneEvery = orDefault(cfg.Homework.PruneEvery, DefaultPruneEvery)
	s.DigestSchedule = orDefault(cfg.Digest.Schedule, DefaultDigestSpec)
	s.DigestRate = cfg.Digest.RatePerSec
	if s.DigestRate <= 0 {
		s.DigestRate = 1
	}
	return s, nil
}

// ParseGroupLog reads "<chat_id>" or "<chat_id>:<thread_id>". Empty yields
// zeros.
func ParseGroupLog(raw string) (chatID int64, threadID int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, nil
	}
	chat, thread, hasThread := strings.Cut(raw, ":")
	if chatID, err = strconv.ParseInt(strings.TrimSpace(chat), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("telegram.group_log: invalid chat id %q", chat)
	}
	if hasThread {
		if threadID, err = strconv.Atoi(strings.TrimSpace(thread)); err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("telegram.group_log: invalid thread id %q", thread)
		}
	}
	return chatID, threadID, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
