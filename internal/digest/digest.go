// Package digest sends tomorrow's schedule to subscribed group chats at
// their configured time.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"diarybot/internal/eventbus"
	"diarybot/internal/render"
	"diarybot/internal/schedule"
	"diarybot/internal/subscription"
	"diarybot/pkg/logx"
)

const DefaultSchedule = "* * * * *"

// Sender delivers a plain text message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) SendText(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// Source returns the schedule for a date key.
type Source interface {
	Get(ctx context.Context, dateKey string, force bool) (schedule.Entry, error)
}

// Subscriptions is the subset of subscription.Store the digest needs.
type Subscriptions interface {
	List() []subscription.Subscription
	MarkSent(ctx context.Context, chatID int64, day string) bool
}

type Config struct {
	Location   *time.Location
	RatePerSec float64
}

type Digest struct {
	loc     *time.Location
	limiter *rate.Limiter
	src     Source
	subs    Subscriptions
	sender  Sender
	log     logx.Logger
	bus     eventbus.Bus
}

func New(cfg Config, src Source, subs Subscriptions, sender Sender, log logx.Logger, bus eventbus.Bus) *Digest {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	return &Digest{
		loc:     cfg.Location,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		src:     src,
		subs:    subs,
		sender:  sender,
		log:     log.With(logx.String("comp", "digest")),
		bus:     bus,
	}
}

// Skipped reports whether no digest goes out on day: tomorrow is a
// weekend after Friday and Saturday.
func Skipped(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

// Due returns the subscriptions whose send time is now and which have not
// received today's digest.
func Due(subs []subscription.Subscription, now time.Time) []subscription.Subscription {
	hm := now.Format("15:04")
	today := schedule.DisplayDate(now)
	var out []subscription.Subscription
	for _, s := range subs {
		if s.SendTime == hm && s.LastSentDate != today {
			out = append(out, s)
		}
	}
	return out
}

// Tick runs one digest round for now and returns how many chats were
// served. Errors for single chats are logged and do not stop the round.
func (d *Digest) Tick(ctx context.Context, now time.Time) (sent int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("digest tick panic: %v", r)
			d.log.Error("digest tick panic", logx.Any("panic", r))
		}
	}()

	now = now.In(d.loc)
	if Skipped(now) {
		return 0, nil
	}
	due := Due(d.subs.List(), now)
	if len(due) == 0 {
		return 0, nil
	}

	tomorrow := now.AddDate(0, 0, 1)
	key := schedule.DateKey(tomorrow)
	today := schedule.DisplayDate(now)

	entry, err := d.src.Get(ctx, key, false)
	if err != nil {
		d.log.Error("digest schedule unavailable", logx.String("date", key), logx.Int("chats", len(due)), logx.Err(err))
		for _, s := range due {
			d.publish(eventbus.DigestFailed, s.ChatID)
		}
		return 0, err
	}
	text := render.Schedule(tomorrow, entry.Result, nil)

	var errs []error
	for _, s := range due {
		if err := d.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		log := d.log.With(logx.Int64("chat_id", s.ChatID), logx.String("date", key))
		if err := d.sender.SendText(ctx, s.ChatID, text); err != nil {
			log.Warn("digest send failed", logx.Err(err))
			d.publish(eventbus.DigestFailed, s.ChatID)
			errs = append(errs, fmt.Errorf("chat %d: %w", s.ChatID, err))
			continue
		}
		d.subs.MarkSent(ctx, s.ChatID, today)
		d.publish(eventbus.DigestSent, s.ChatID)
		log.Info("digest sent")
		sent++
	}
	return sent, errors.Join(errs...)
}

func (d *Digest) publish(typ string, chatID int64) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: chatID})
	}
}
