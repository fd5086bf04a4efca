// Package bot implements the chat commands on top of the diary service.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"diarybot/internal/diary"
	"diarybot/internal/normalize"
	"diarybot/internal/render"
	"diarybot/internal/schedule"
	kit "diarybot/internal/transport"
	"diarybot/internal/transport/telegram/router"
	"diarybot/pkg/logx"
)

const (
	cbDay     = "day"
	cbRefresh = "refresh"

	// weekTimeout covers seven sequential fetches.
	weekTimeout = 3 * time.Minute
)

var shortDays = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

type Bot struct {
	svc *diary.Service
}

func New(svc *diary.Service) *Bot { return &Bot{svc: svc} }

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "приветствие", Hidden: true, Handle: b.start},
		{Name: "today", Description: "расписание на сегодня", Handle: b.today},
		{Name: "tomorrow", Description: "расписание на завтра", Handle: b.tomorrow},
		{Name: "date", Description: "расписание на дату", Usage: "/date ДД-ММ-ГГГГ", Handle: b.date},
		{Name: "week", Description: "расписание на неделю", Timeout: weekTimeout, Handle: b.week},
		{Name: "refresh", Description: "обновить расписание", Usage: "/refresh [ДД-ММ-ГГГГ]", Handle: b.refresh},
		{Name: "done", Description: "отметить ДЗ сделанным", Usage: "/done N [ДД-ММ-ГГГГ]", Handle: b.markHandler(true)},
		{Name: "undone", Description: "снять отметку ДЗ", Usage: "/undone N [ДД-ММ-ГГГГ]", Handle: b.markHandler(false)},
		{Name: "groups", Description: "рассылка расписания в группу", Usage: "/groups ЧЧ:ММ", Access: router.AccessGroupAdmin, Handle: b.groups},
		{Name: "disable", Description: "отключить рассылку", Access: router.AccessGroupAdmin, Handle: b.disable},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: cbDay, Handle: b.dayCallback},
		{Prefix: cbRefresh, Handle: b.refreshCallback},
	}
}

func (b *Bot) start(ctx context.Context, req *router.Request) error {
	name := req.FromName
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf("👋 Привет, %s!\n\nЯ показываю школьное расписание и домашние задания.\n"+
		"/today - на сегодня\n/tomorrow - на завтра\n/week - на неделю\n/help - все команды", name)
	return req.Reply(ctx, text, nil)
}

func (b *Bot) today(ctx context.Context, req *router.Request) error {
	return b.showDay(ctx, req, b.svc.Today())
}

func (b *Bot) tomorrow(ctx context.Context, req *router.Request) error {
	return b.showDay(ctx, req, b.svc.Today().AddDate(0, 0, 1))
}

func (b *Bot) date(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Укажите дату: /date ДД-ММ-ГГГГ", nil)
	}
	day, err := b.svc.ParseDate(req.Args[0])
	if err != nil {
		return err
	}
	return b.showDay(ctx, req, day)
}

func (b *Bot) dayCallback(ctx context.Context, req *router.Request) error {
	day, err := b.svc.ParseDate(req.Payload)
	if err != nil {
		return err
	}
	return b.showDay(ctx, req, day)
}

func (b *Bot) showDay(ctx context.Context, req *router.Request, day time.Time) error {
	e, err := b.svc.GetSchedule(ctx, day, false)
	if err != nil {
		return err
	}
	return req.Reply(ctx, b.dayText(req.FromID, day, e), dayKeyboard(day))
}

func (b *Bot) dayText(user int64, day time.Time, e schedule.Entry) string {
	text := render.Schedule(day, e.Result, b.svc.HomeworkStatus(user, day))
	if b.svc.IsStale(e) {
		at := e.FetchedAt.In(b.svc.Location()).Format("02.01 15:04")
		text += "\n\n⚠️ Дневник недоступен, показаны данные от " + at + "."
	}
	return text
}

func dayKeyboard(day time.Time) *kit.SendOptions {
	return &kit.SendOptions{Keyboard: [][]kit.Button{{
		{Text: "🔄 Обновить", Data: cbRefresh + ":" + schedule.DateKey(day)},
	}}}
}

func (b *Bot) refresh(ctx context.Context, req *router.Request) error {
	day := b.svc.Today()
	if len(req.Args) > 0 {
		d, err := b.svc.ParseDate(req.Args[0])
		if err != nil {
			return err
		}
		day = d
	}
	return b.manualRefresh(ctx, req, day)
}

func (b *Bot) refreshCallback(ctx context.Context, req *router.Request) error {
	day, err := b.svc.ParseDate(req.Payload)
	if err != nil {
		return err
	}
	return b.manualRefresh(ctx, req, day)
}

func (b *Bot) manualRefresh(ctx context.Context, req *router.Request, day time.Time) error {
	e, err := b.svc.ManualRefresh(ctx, req.FromID, day)
	if err != nil {
		return err
	}
	return req.Reply(ctx, "🔄 Обновлено\n\n"+b.dayText(req.FromID, day, e), dayKeyboard(day))
}

func (b *Bot) week(ctx context.Context, req *router.Request) error {
	today := b.svc.Today()
	days := b.svc.Week(ctx, today)
	if len(days) == 0 {
		return ctx.Err()
	}

	lines := []string{render.WeekHeader(days[0].Day), ""}
	for _, d := range days {
		lines = append(lines, render.WeekLine(d.Day, d.Entry.Result, d.Err))
	}
	lines = append(lines, "", "Выберите день для подробного расписания:")
	return req.Reply(ctx, strings.Join(lines, "\n"), &kit.SendOptions{Keyboard: weekKeyboard(days[0].Day, today)})
}

// weekKeyboard lays out Monday to Sunday in rows of three, marking today.
func weekKeyboard(monday, today time.Time) [][]kit.Button {
	var rows [][]kit.Button
	var row []kit.Button
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		label := fmt.Sprintf("%s (%s)", shortDays[i], day.Format("02.01"))
		if schedule.DateKey(day) == schedule.DateKey(today) {
			label = "✅ " + label
		}
		row = append(row, kit.Button{Text: label, Data: cbDay + ":" + schedule.DateKey(day)})
		if len(row) == 3 || i == 6 {
			rows = append(rows, row)
			row = nil
		}
	}
	return rows
}

func (b *Bot) markHandler(done bool) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if len(req.Args) == 0 {
			return req.Reply(ctx, "Укажите номер урока: /"+req.Command+" N [ДД-ММ-ГГГГ]", nil)
		}
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %q", diary.ErrInvalidIndex, req.Args[0])
		}
		day := b.svc.Today()
		if len(req.Args) > 1 {
			if day, err = b.svc.ParseDate(req.Args[1]); err != nil {
				return err
			}
		}

		e, err := b.svc.GetSchedule(ctx, day, false)
		if err != nil {
			return err
		}
		if n > len(normalize.ForDisplay(e.Result.Lessons)) {
			return fmt.Errorf("%w: %d", diary.ErrInvalidIndex, n)
		}
		if err := b.svc.MarkHomework(ctx, req.FromID, day, n-1, done); err != nil {
			return err
		}
		return req.Reply(ctx, b.dayText(req.FromID, day, e), dayKeyboard(day))
	}
}

func (b *Bot) groups(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		for _, s := range b.svc.ListSubscriptions() {
			if s.ChatID == req.Chat.ChatID {
				return req.Reply(ctx, "📬 Рассылка включена, время отправки "+s.SendTime+". Изменить: /groups ЧЧ:ММ, отключить: /disable", nil)
			}
		}
		return req.Reply(ctx, "Укажите время рассылки: /groups ЧЧ:ММ", nil)
	}
	sub, err := b.svc.UpsertSubscription(ctx, req.Chat.ChatID, req.Args[0])
	if err != nil {
		return err
	}
	req.Logger.Info("digest subscription saved", logx.String("send_time", sub.SendTime))
	return req.Reply(ctx, "✅ Каждый день в "+sub.SendTime+" буду присылать расписание на завтра (кроме пятницы и субботы).", nil)
}

func (b *Bot) disable(ctx context.Context, req *router.Request) error {
	removed, err := b.svc.RemoveSubscription(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, "Рассылка в этом чате не была включена.", nil)
	}
	req.Logger.Info("digest subscription removed")
	return req.Reply(ctx, "🔕 Рассылка отключена.", nil)
}
