package app

import (
	"context"
	"time"

	"diarybot/internal/config"
	"diarybot/internal/digest"
	"diarybot/pkg/logx"
)

const (
	jobDigest        = "digest.tick"
	jobCacheSweep    = "cache.sweep"
	jobRefreshReap   = "refresh.reap"
	jobHomeworkPrune = "homework.prune"
)

// registerJobs (re)installs the periodic jobs for cfg. Calling it again
// replaces schedules by name.
func (a *App) registerJobs(cfg *config.Config, set config.Settings) error {
	if err := a.sched.AddSchedule(jobCacheSweep, set.SweepEvery, 30*time.Second, a.sweepCache); err != nil {
		return err
	}
	if err := a.sched.AddSchedule(jobRefreshReap, set.ReapEvery, 10*time.Second, a.reapIdle); err != nil {
		return err
	}
	if err := a.sched.AddSchedule(jobHomeworkPrune, set.PruneEvery, 30*time.Second, a.pruneHomework); err != nil {
		return err
	}
	return a.applyDigest(cfg, set)
}

func (a *App) applyDigest(cfg *config.Config, set config.Settings) error {
	if !cfg.Digest.Enabled {
		if a.sched.Remove(jobDigest) {
			a.log.Info("digest disabled")
		}
		a.digest.Store(nil)
		return nil
	}
	d := digest.New(digest.Config{
		Location:   set.Location,
		RatePerSec: set.DigestRate,
	}, a.cache, a.subs, digest.SenderFunc(a.adapter.SendPlain), a.root, a.bus)
	a.digest.Store(d)
	return a.sched.AddSchedule(jobDigest, set.DigestSchedule, 2*time.Minute, a.runDigest)
}

func (a *App) runDigest(ctx context.Context) error {
	d := a.digest.Load()
	if d == nil {
		return nil
	}
	sent, err := d.Tick(ctx, time.Now())
	if sent > 0 {
		a.log.Debug("digest tick done", logx.Int("sent", sent))
	}
	return err
}

func (a *App) sweepCache(ctx context.Context) error {
	a.cache.Sweep(ctx)
	return nil
}

func (a *App) reapIdle(context.Context) error {
	now := time.Now()
	if a.coord.ReapIdle(now) {
		a.log.Debug("idle portal session closed")
	}
	a.cooldown.Prune(now)
	return nil
}

func (a *App) pruneHomework(ctx context.Context) error {
	set := a.settings.Load()
	if n := a.homework.Prune(ctx, time.Now(), set.HomeworkRetention); n > 0 {
		a.log.Info("homework marks pruned", logx.Int("removed", n))
	}
	return nil
}
