package app

import (
	"strings"
	"time"

	"diarybot/internal/config"
	"diarybot/internal/storage"
	"diarybot/internal/task/engine"
	"diarybot/pkg/logx"
)

func mapLogConfig(cfg *config.Config, set config.Settings) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alert: logx.AlertConfig{
			// Alerts need a target chat; without one they stay off.
			Enabled:    lc.Telegram.Enabled && set.AlertChatID != 0,
			ChatID:     set.AlertChatID,
			ThreadID:   set.AlertThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config, set config.Settings) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: set.StorageBusyTimeout,
	}
}

func mapTaskEngineConfig(cfg *config.Config) engine.Config {
	tc := cfg.TaskEngine
	workers := tc.Workers
	switch {
	case workers == 0:
		workers = 4
	case workers < 2:
		// A scheduled digest waits on a refresh task; one worker would
		// deadlock.
		workers = 2
	}
	queue := tc.QueueSize
	if queue == 0 {
		queue = 64
	}
	return engine.Config{
		Workers:        workers,
		QueueSize:      queue,
		DefaultTimeout: 2 * time.Minute,
		HistorySize:    tc.HistorySize,
		RetryMax:       tc.RetryMax,
	}
}
