package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"diarybot/internal/schedule"
	"diarybot/internal/storage"
	"diarybot/internal/subscription"
	"diarybot/pkg/logx"
)

type fakeSource struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeSource) Get(_ context.Context, key string, _ bool) (schedule.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return schedule.Entry{}, f.err
	}
	return schedule.Entry{DateKey: key, Result: schedule.Lessons([]schedule.Lesson{schedule.NewLesson("Химия")})}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64]string
	fail map[int64]bool
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("forbidden")
	}
	if f.sent == nil {
		f.sent = map[int64]string{}
	}
	f.sent[chatID] = text
	return nil
}

func setup(t *testing.T) (*subscription.Store, *fakeSource, *fakeSender, *Digest) {
	t.Helper()
	subs := subscription.New(storage.NewMemory(), logx.Nop())
	src := &fakeSource{}
	snd := &fakeSender{fail: map[int64]bool{}}
	d := New(Config{Location: time.UTC, RatePerSec: 1000}, src, subs, snd, logx.Nop(), nil)
	return subs, src, snd, d
}

func TestTickSendsDueChats(t *testing.T) {
	t.Parallel()
	subs, src, snd, d := setup(t)
	ctx := context.Background()
	subs.Upsert(ctx, 1, "19:00")
	subs.Upsert(ctx, 2, "20:00")

	now := time.Date(2025, 9, 15, 19, 0, 30, 0, time.UTC) // Monday
	n, err := d.Tick(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("Tick = %d, %v, want 1, nil", n, err)
	}
	if _, ok := snd.sent[1]; !ok {
		t.Fatalf("chat 1 not served")
	}
	if len(src.keys) != 1 || src.keys[0] != "16-09-2025" {
		t.Fatalf("fetched %v, want tomorrow 16-09-2025", src.keys)
	}
	if s, _ := subs.Get(1); s.LastSentDate != "15.09.2025" {
		t.Fatalf("LastSentDate = %q, want 15.09.2025", s.LastSentDate)
	}

	if n, _ := d.Tick(ctx, now.Add(10*time.Second)); n != 0 {
		t.Fatalf("second Tick same minute = %d, want 0", n)
	}
}

func TestTickSkipsFridayAndSaturday(t *testing.T) {
	t.Parallel()
	for _, day := range []int{19, 20} {
		day := day
		t.Run(time.Date(2025, 9, day, 0, 0, 0, 0, time.UTC).Weekday().String(), func(t *testing.T) {
			t.Parallel()
			subs, src, snd, d := setup(t)
			ctx := context.Background()
			subs.Upsert(ctx, 1, "19:00")

			n, err := d.Tick(ctx, time.Date(2025, 9, day, 19, 0, 0, 0, time.UTC))
			if err != nil || n != 0 {
				t.Fatalf("Tick = %d, %v, want 0, nil", n, err)
			}
			if len(snd.sent) != 0 || len(src.keys) != 0 {
				t.Fatalf("sent %v fetched %v, want nothing", snd.sent, src.keys)
			}
		})
	}
}

func TestFailedSendIsRetriedNextTick(t *testing.T) {
	t.Parallel()
	subs, _, snd, d := setup(t)
	ctx := context.Background()
	subs.Upsert(ctx, 1, "19:00")
	subs.Upsert(ctx, 2, "19:00")
	snd.fail[1] = true

	now := time.Date(2025, 9, 14, 19, 0, 0, 0, time.UTC) // Sunday
	n, err := d.Tick(ctx, now)
	if n != 1 || err == nil {
		t.Fatalf("Tick = %d, %v, want 1 and an error", n, err)
	}
	if s, _ := subs.Get(1); s.LastSentDate != "" {
		t.Fatalf("failed chat marked sent: %q", s.LastSentDate)
	}

	snd.fail[1] = false
	if n, err := d.Tick(ctx, now.Add(20*time.Second)); n != 1 || err != nil {
		t.Fatalf("retry Tick = %d, %v, want 1, nil", n, err)
	}
}

func TestFetchFailureSendsNothing(t *testing.T) {
	t.Parallel()
	subs, src, snd, d := setup(t)
	ctx := context.Background()
	subs.Upsert(ctx, 1, "07:05")
	src.err = schedule.ErrAuthRequired

	_, err := d.Tick(ctx, time.Date(2025, 9, 16, 7, 5, 0, 0, time.UTC))
	if !errors.Is(err, schedule.ErrAuthRequired) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrAuthRequired)
	}
	if len(snd.sent) != 0 {
		t.Fatalf("sent %v, want nothing", snd.sent)
	}
	if s, _ := subs.Get(1); s.LastSentDate != "" {
		t.Fatalf("LastSentDate = %q, want empty", s.LastSentDate)
	}
}
