// Package homework tracks which lessons a user marked as done.
package homework

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"diarybot/internal/schedule"
	"diarybot/internal/storage"
	"diarybot/pkg/logx"
)

const (
	SnapshotName     = "homework"
	DefaultRetention = 30 * 24 * time.Hour
)

type key struct {
	user int64
	date string
}

// Mark is the persisted form of one done flag.
type Mark struct {
	User  int64  `json:"user"`
	Date  string `json:"date"`
	Index int    `json:"index"`
}

// Tracker keeps done marks keyed by user, date and lesson index. Only
// done marks are stored.
type Tracker struct {
	store storage.Store
	loc   *time.Location
	log   logx.Logger

	mu    sync.Mutex
	marks map[key]map[int]struct{}
}

func New(store storage.Store, loc *time.Location, log logx.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		store: store,
		loc:   loc,
		log:   log.With(logx.String("comp", "homework")),
		marks: map[key]map[int]struct{}{},
	}
}

func (t *Tracker) Load(ctx context.Context) error {
	b, ok, err := t.store.Load(ctx, SnapshotName)
	if err != nil || !ok {
		return err
	}
	var marks []Mark
	if err := json.Unmarshal(b, &marks); err != nil {
		return fmt.Errorf("decode %s: %w", SnapshotName, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range marks {
		t.setLocked(key{m.User, m.Date}, m.Index, true)
	}
	return nil
}

// Set records index on date as done or not done for user.
func (t *Tracker) Set(ctx context.Context, user int64, date string, index int, done bool) error {
	if index < 0 {
		return fmt.Errorf("lesson index %d out of range", index)
	}
	k := key{user, date}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.setLocked(k, index, done) {
		return nil
	}
	t.persistLocked(ctx)
	return nil
}

func (t *Tracker) setLocked(k key, index int, done bool) bool {
	set := t.marks[k]
	_, had := set[index]
	if had == done {
		return false
	}
	if done {
		if set == nil {
			set = map[int]struct{}{}
			t.marks[k] = set
		}
		set[index] = struct{}{}
		return true
	}
	delete(set, index)
	if len(set) == 0 {
		delete(t.marks, k)
	}
	return true
}

// Status returns the done lesson indexes for user on date.
func (t *Tracker) Status(user int64, date string) map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.marks[key{user, date}]
	out := make(map[int]bool, len(set))
	for i := range set {
		out[i] = true
	}
	return out
}

// Prune drops marks for dates older than retention before now.
func (t *Tracker) Prune(ctx context.Context, now time.Time, retention time.Duration) int {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k := range t.marks {
		d, err := schedule.ParseDateKey(k.date, t.loc)
		if err != nil || d.Before(cutoff) {
			delete(t.marks, k)
			removed++
		}
	}
	if removed > 0 {
		t.persistLocked(ctx)
		t.log.Info("homework marks pruned", logx.Int("dates", removed))
	}
	return removed
}

func (t *Tracker) persistLocked(ctx context.Context) {
	marks := make([]Mark, 0, len(t.marks))
	for k, set := range t.marks {
		for i := range set {
			marks = append(marks, Mark{User: k.user, Date: k.date, Index: i})
		}
	}
	sort.Slice(marks, func(i, j int) bool {
		a, b := marks[i], marks[j]
		if a.User != b.User {
			return a.User < b.User
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Index < b.Index
	})
	b, err := json.Marshal(marks)
	if err == nil {
		err = t.store.Save(context.WithoutCancel(ctx), SnapshotName, b)
	}
	if err != nil {
		t.log.Error("homework snapshot failed", logx.Err(fmt.Errorf("%w: %w", schedule.ErrPersistence, err)))
	}
}
