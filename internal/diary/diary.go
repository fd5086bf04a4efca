// Package diary is the consumer-facing facade over the schedule cache,
// refresh cooldowns, homework marks and digest subscriptions.
package diary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diarybot/internal/cache"
	"diarybot/internal/homework"
	"diarybot/internal/refresh"
	"diarybot/internal/schedule"
	"diarybot/internal/subscription"
	"diarybot/internal/task/scheduler"
	"diarybot/pkg/logx"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidTime  = errors.New("invalid send time")
	ErrInvalidIndex = errors.New("invalid lesson number")
)

type Deps struct {
	Cache         *cache.Cache
	Cooldown      *refresh.Cooldown
	Homework      *homework.Tracker
	Subscriptions *subscription.Store
	Location      *time.Location
	Now           func() time.Time
	Log           logx.Logger
}

type Service struct {
	cache    *cache.Cache
	cooldown *refresh.Cooldown
	hw       *homework.Tracker
	subs     *subscription.Store
	loc      *time.Location
	now      func() time.Time
	log      logx.Logger
}

func New(d Deps) *Service {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Cooldown == nil {
		d.Cooldown = refresh.NewCooldown(0)
	}
	return &Service{
		cache:    d.Cache,
		cooldown: d.Cooldown,
		hw:       d.Homework,
		subs:     d.Subscriptions,
		loc:      d.Location,
		now:      d.Now,
		log:      d.Log.With(logx.String("comp", "diary")),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// Today is the current day at midnight in the service timezone.
func (s *Service) Today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// ParseDate accepts DD-MM-YYYY or DD.MM.YYYY.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	t, err := schedule.ParseDateKey(raw, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}
	return t, nil
}

// GetSchedule returns the schedule for day, fetching when the cached entry
// is missing or stale, or when force is set.
func (s *Service) GetSchedule(ctx context.Context, day time.Time, force bool) (schedule.Entry, error) {
	key := schedule.DateKey(day)
	e, err := s.cache.Get(ctx, key, force)
	if err != nil {
		s.log.Debug("schedule unavailable", logx.String("date", key), logx.Bool("force", force), logx.Err(err))
		return schedule.Entry{}, err
	}
	return e, nil
}

// CanManualRefresh reports whether user may force a refresh of day now,
// and otherwise the whole seconds left.
func (s *Service) CanManualRefresh(user int64, day time.Time) (bool, int) {
	ok, left := s.cooldown.Check(user, schedule.DateKey(day), s.now())
	if ok {
		return true, 0
	}
	return false, (&refresh.CooldownError{Remaining: left}).Seconds()
}

// ManualRefresh forces a fetch of day for user. The cooldown starts when
// the request is accepted, whether or not the fetch succeeds.
func (s *Service) ManualRefresh(ctx context.Context, user int64, day time.Time) (schedule.Entry, error) {
	key := schedule.DateKey(day)
	now := s.now()
	if ok, left := s.cooldown.Check(user, key, now); !ok {
		return schedule.Entry{}, &refresh.CooldownError{Remaining: left}
	}
	s.cooldown.Mark(user, key, now)
	s.log.Info("manual refresh", logx.Int64("user_id", user), logx.String("date", key))
	return s.GetSchedule(ctx, day, true)
}

// IsStale reports whether e is past the cache TTL.
func (s *Service) IsStale(e schedule.Entry) bool { return !s.cache.Fresh(e) }

// DaySchedule is one day of a week overview.
type DaySchedule struct {
	Day   time.Time
	Entry schedule.Entry
	Err   error
}

// Week returns Monday to Sunday of the week containing ref. Days are
// fetched one after another; a failed day does not stop the rest.
func (s *Service) Week(ctx context.Context, ref time.Time) []DaySchedule {
	monday := schedule.WeekStart(ref.In(s.loc))
	out := make([]DaySchedule, 0, 7)
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		e, err := s.GetSchedule(ctx, day, false)
		out = append(out, DaySchedule{Day: day, Entry: e, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return out
}

// MarkHomework sets the done mark of the lesson at index (0-based, in
// display order) on day.
func (s *Service) MarkHomework(ctx context.Context, user int64, day time.Time, index int, done bool) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index+1)
	}
	return s.hw.Set(ctx, user, schedule.DateKey(day), index, done)
}

func (s *Service) HomeworkStatus(user int64, day time.Time) map[int]bool {
	return s.hw.Status(user, schedule.DateKey(day))
}

func (s *Service) ListSubscriptions() []subscription.Subscription { return s.subs.List() }

// UpsertSubscription validates sendTime (H:MM or HH:MM) and stores it
// zero-padded for chatID.
func (s *Service) UpsertSubscription(ctx context.Context, chatID int64, sendTime string) (subscription.Subscription, error) {
	hm, err := scheduler.ParseClock(sendTime)
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("%w: %w", ErrInvalidTime, err)
	}
	return s.subs.Upsert(ctx, chatID, hm), nil
}

func (s *Service) RemoveSubscription(ctx context.Context, chatID int64) (bool, error) {
	return s.subs.Remove(ctx, chatID), nil
}
