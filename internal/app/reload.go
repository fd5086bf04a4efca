package app

import (
	"context"
	"strings"

	"diarybot/internal/config"
	"diarybot/pkg/logx"
	"diarybot/pkg/systemd"
)

// reloadLoop applies config updates published by the manager. Sections
// read only at startup are reported and left alone.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the latest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(last, newCfg)
			last = newCfg
		}
	}
}

func (a *App) apply(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	set, err := config.Resolve(newCfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	if config.NeedsRestart(sections) {
		a.log.Warn("some config changes take effect after restart", logx.String("changed", strings.Join(sections, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg, set))
	a.cmdm.SetAdmins(newCfg.Telegram.AdminUserIDs)
	a.settings.Store(&set)
	if err := a.registerJobs(newCfg, set); err != nil {
		a.log.Warn("job schedules not updated", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
