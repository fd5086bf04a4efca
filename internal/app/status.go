package app

import (
	"time"

	"diarybot/internal/task/engine"
	"diarybot/internal/task/scheduler"
)

type Status struct {
	Time          time.Time                `json:"time"`
	CachedDays    int                      `json:"cached_days"`
	SessionActive bool                     `json:"session_active"`
	Subscriptions int                      `json:"subscriptions"`
	DigestEnabled bool                     `json:"digest_enabled"`
	Engine        engine.Snapshot          `json:"engine"`
	Schedules     []scheduler.ScheduleInfo `json:"schedules"`
}

// Status reports runtime state for the debug endpoint.
func (a *App) Status() any {
	return Status{
		Time:          time.Now(),
		CachedDays:    a.cache.Len(),
		SessionActive: a.coord.Active(),
		Subscriptions: len(a.subs.List()),
		DigestEnabled: a.digest.Load() != nil,
		Engine:        a.engine.Snapshot(),
		Schedules:     a.sched.Snapshot(),
	}
}
