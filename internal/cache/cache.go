// Package cache keeps the last good schedule per date and decides when a
// date must be fetched again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"diarybot/internal/eventbus"
	"diarybot/internal/schedule"
	"diarybot/internal/storage"
	"diarybot/pkg/logx"
)

// SnapshotName is the storage blob holding every cached entry.
const SnapshotName = "schedule_cache"

const DefaultTTL = 48 * time.Hour

// Fetcher produces a fresh result for a date key.
type Fetcher interface {
	Refresh(ctx context.Context, dateKey string) (schedule.Result, error)
}

type Config struct {
	TTL time.Duration
	Now func() time.Time
}

type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	fetcher Fetcher
	store   storage.Store
	log     logx.Logger
	bus     eventbus.Bus

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]schedule.Entry
}

func New(cfg Config, fetcher Fetcher, store storage.Store, log logx.Logger, bus eventbus.Bus) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		fetcher: fetcher,
		store:   store,
		log:     log.With(logx.String("comp", "cache")),
		bus:     bus,
		entries: map[string]schedule.Entry{},
	}
}

// Load restores entries from the durable snapshot.
func (c *Cache) Load(ctx context.Context) error {
	b, ok, err := c.store.Load(ctx, SnapshotName)
	if err != nil || !ok {
		return err
	}
	var entries []schedule.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return fmt.Errorf("decode %s: %w", SnapshotName, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.DateKey != "" && e.Result.Cacheable() {
			c.entries[e.DateKey] = e
		}
	}
	c.log.Info("cache restored", logx.Int("entries", len(c.entries)))
	return nil
}

// Peek returns the cached entry without fetching.
func (c *Cache) Peek(dateKey string) (schedule.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[dateKey]
	return e, ok
}

// Fresh reports whether e is within the TTL.
func (c *Cache) Fresh(e schedule.Entry) bool { return !e.Stale(c.now(), c.ttl) }

// Get returns the schedule for dateKey. A fresh entry is returned as is
// unless force is set. Otherwise one fetch per date runs at a time and
// concurrent callers share its outcome. When the fetch fails the previous
// entry is returned even if stale.
//
// The shared fetch runs detached from the caller that started it and is
// bounded by the fetcher; each caller waits on its own ctx. An expired
// session is logged at error level, with or without a fallback.
func (c *Cache) Get(ctx context.Context, dateKey string, force bool) (schedule.Entry, error) {
	prev, havePrev := c.Peek(dateKey)
	if havePrev && !force && c.Fresh(prev) {
		return prev, nil
	}

	ch := c.group.DoChan(dateKey, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), dateKey)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return schedule.Entry{}, ctx.Err()
	}
	err := r.Err
	if err == nil {
		return r.Val.(schedule.Entry), nil
	}

	fields := []logx.Field{logx.String("date", dateKey), logx.Err(err), logx.Bool("shared", r.Shared), logx.Bool("fallback", havePrev)}
	if errors.Is(err, schedule.ErrAuthRequired) {
		c.log.Error("diary session expired, cookies need refreshing", fields...)
	} else {
		c.log.Warn("schedule refresh failed", fields...)
	}
	if havePrev {
		return prev, nil
	}
	if errors.Is(err, schedule.ErrTimeout) {
		return schedule.Entry{}, fmt.Errorf("%w: %w", schedule.ErrExtractionFailed, err)
	}
	return schedule.Entry{}, err
}

func (c *Cache) fetch(ctx context.Context, dateKey string) (schedule.Entry, error) {
	res, err := c.fetcher.Refresh(ctx, dateKey)
	if err == nil && !res.Cacheable() {
		err = schedule.ErrExtractionFailed
	}
	if err != nil {
		c.publish(eventbus.ScheduleFailed, dateKey)
		return schedule.Entry{}, err
	}

	e := schedule.Entry{DateKey: dateKey, Result: res, FetchedAt: c.now()}
	c.mu.Lock()
	c.entries[dateKey] = e
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.publish(eventbus.ScheduleRefreshed, dateKey)
	c.log.Debug("schedule cached", logx.String("date", dateKey), logx.String("kind", string(res.Kind)), logx.Int("lessons", len(res.Lessons)))
	return e, nil
}

// Sweep drops entries older than twice the TTL and returns how many were
// removed.
func (c *Cache) Sweep(ctx context.Context) int {
	cutoff := c.now().Add(-2 * c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if e.FetchedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked(ctx)
		c.log.Info("cache swept", logx.Int("removed", removed), logx.Int("left", len(c.entries)))
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// persistLocked writes the whole cache. Failures are logged and the
// in-memory state is kept.
func (c *Cache) persistLocked(ctx context.Context) {
	entries := make([]schedule.Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DateKey < entries[j].DateKey })

	b, err := json.Marshal(entries)
	if err == nil {
		err = c.store.Save(context.WithoutCancel(ctx), SnapshotName, b)
	}
	if err != nil {
		c.log.Error("cache snapshot failed", logx.Err(fmt.Errorf("%w: %w", schedule.ErrPersistence, err)))
	}
}

func (c *Cache) publish(typ, dateKey string) {
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: typ, Data: dateKey})
	}
}
