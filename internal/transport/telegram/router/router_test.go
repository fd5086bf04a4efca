package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "diarybot/internal/transport"
	"diarybot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     chan string
	answered chan string
	admins   map[int64]bool
	menu     []kit.BotCommand
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{sent: make(chan string, 16), answered: make(chan string, 16), admins: map[int64]bool{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.sent <- text
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	f.answered <- id
	return nil
}

func (f *fakeAdapter) IsChatAdmin(_ context.Context, _, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[userID], nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no message sent")
		return ""
	}
}

func message(chatID, from int64, text string, group bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: from, Text: text, IsGroup: group}}
}

func startManager(t *testing.T, m *CommandManager) chan kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func echo(ctx context.Context, req *Request) error {
	return req.Reply(ctx, req.Command+":"+strings.Join(req.Args, ","), nil)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{in: "/date 15-09-2025", name: "date", args: []string{"15-09-2025"}, ok: true},
		{in: "/Today@diary_bot", name: "today", ok: true},
		{in: "  /groups   07:30 ", name: "groups", args: []string{"07:30"}, ok: true},
		{in: "hello", ok: false},
		{in: "/", ok: false},
		{in: "/@bot", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			name, args, ok := ParseCommand(tt.in)
			if ok != tt.ok || name != tt.name {
				t.Fatalf("ParseCommand(%q) = %q, %v, want %q, %v", tt.in, name, ok, tt.name, tt.ok)
			}
			if strings.Join(args, " ") != strings.Join(tt.args, " ") {
				t.Fatalf("args = %v, want %v", args, tt.args)
			}
		})
	}
}

func TestDispatchRoutesCommandsAndAliases(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), a, Options{Workers: 1})
	m.SetRegistry([]Command{{Name: "date", Aliases: []string{"d"}, Handle: echo}}, nil)
	updates := startManager(t, m)

	updates <- message(1, 10, "/date 15-09-2025", false)
	if got := a.next(t); got != "date:15-09-2025" {
		t.Fatalf("reply = %q, want date:15-09-2025", got)
	}
	updates <- message(1, 10, "/d 16-09-2025", false)
	if got := a.next(t); got != "date:16-09-2025" {
		t.Fatalf("alias reply = %q, want date:16-09-2025", got)
	}
	updates <- message(1, 10, "/nope", false)
	if got := a.next(t); !strings.Contains(got, "/help") {
		t.Fatalf("unknown reply = %q, want hint to /help", got)
	}
}

func TestErrorReplyUsesErrorText(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), a, Options{
		Workers:   1,
		ErrorText: func(err error) string { return "oops: " + err.Error() },
	})
	m.SetRegistry([]Command{{Name: "fail", Handle: func(context.Context, *Request) error {
		return errors.New("boom")
	}}}, nil)
	updates := startManager(t, m)

	updates <- message(1, 10, "/fail", false)
	if got := a.next(t); got != "oops: boom" {
		t.Fatalf("reply = %q, want oops: boom", got)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), a, Options{
		Workers:   1,
		ErrorText: func(error) string { return "internal" },
	})
	m.SetRegistry([]Command{
		{Name: "panic", Handle: func(context.Context, *Request) error { panic("bad") }},
		{Name: "ok", Handle: echo},
	}, nil)
	updates := startManager(t, m)

	updates <- message(1, 10, "/panic", false)
	if got := a.next(t); got != "internal" {
		t.Fatalf("reply = %q, want internal", got)
	}
	updates <- message(1, 10, "/ok", false)
	if got := a.next(t); got != "ok:" {
		t.Fatalf("reply after panic = %q, want ok:", got)
	}
}

func TestGroupAdminAccess(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	a.admins[20] = true
	m := NewCommandManager(logx.Nop(), a, Options{Workers: 1, Admins: []int64{30}})
	m.SetRegistry([]Command{{Name: "groups", Access: AccessGroupAdmin, Handle: echo}}, nil)
	updates := startManager(t, m)

	updates <- message(-1, 20, "/groups 07:30", false)
	if got := a.next(t); !strings.Contains(got, "только в группах") {
		t.Fatalf("private reply = %q, want group-only notice", got)
	}
	updates <- message(-1, 10, "/groups 07:30", true)
	if got := a.next(t); !strings.HasPrefix(got, "⛔") {
		t.Fatalf("non-admin reply = %q, want rejection", got)
	}
	updates <- message(-1, 20, "/groups 07:30", true)
	if got := a.next(t); got != "groups:07:30" {
		t.Fatalf("chat admin reply = %q, want groups:07:30", got)
	}
	updates <- message(-1, 30, "/groups 08:00", true)
	if got := a.next(t); got != "groups:08:00" {
		t.Fatalf("bot admin reply = %q, want groups:08:00", got)
	}
}

func TestCallbackRouting(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), a, Options{Workers: 1})
	m.SetRegistry(nil, []CallbackRoute{{Prefix: "day", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "day="+req.Payload, nil)
	}}})
	updates := startManager(t, m)

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: 1, Data: "day:17-09-2025"}}
	if got := a.next(t); got != "day=17-09-2025" {
		t.Fatalf("reply = %q, want day=17-09-2025", got)
	}
	select {
	case id := <-a.answered:
		if id != "cb1" {
			t.Fatalf("answered %q, want cb1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not answered")
	}
}

func TestMenuAndHelp(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), a, Options{Admins: []int64{1}})
	m.SetRegistry([]Command{
		{Name: "today", Description: "расписание на сегодня", Handle: echo},
		{Name: "reload", Description: "перечитать конфиг", Access: AccessAdmin, Handle: echo},
		{Name: "secret", Hidden: true, Handle: echo},
	}, nil)

	if err := m.PublishMenu(context.Background()); err != nil {
		t.Fatalf("PublishMenu: %v", err)
	}
	var names []string
	for _, c := range a.menu {
		names = append(names, c.Command)
	}
	if got := strings.Join(names, ","); got != "today,help" {
		t.Fatalf("menu = %s, want today,help", got)
	}

	if h := m.HelpText(2); strings.Contains(h, "/reload") || !strings.Contains(h, "/today") {
		t.Fatalf("user help = %q", h)
	}
	if h := m.HelpText(1); !strings.Contains(h, "/reload") {
		t.Fatalf("admin help = %q, want /reload", h)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Today":      "today",
		"set-time":   "set_time",
		"9lives":     "cmd_9lives",
		"  a  b ":    "a_b",
		"расписание": "",
	}
	tests[strings.Repeat("x", 40)] = strings.Repeat("x", 32)
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
