package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"diarybot/internal/extract"
	"diarybot/internal/portal"
	"diarybot/internal/schedule"
	"diarybot/internal/task/engine"
	"diarybot/pkg/logx"
)

const (
	testBase = "https://diary.test"
	testDate = "15-09-2025"
	listURL  = testBase + "/diary/schedules"
	dateURL  = testBase + "/diary/schedules/schedule/?date=" + testDate
)

const lessonsPage = `<html><body><div class="lessons-list"><div><div><div>
<a href="/diary/lesson/1"><div><h6>Алгебра</h6></div><div>08:30-09:15</div></a>
<a href="/diary/lesson/2"><div><h6>Физика</h6></div><div>09:25-10:10</div></a>
</div></div></div></div></body></html>`

type countingFactory struct {
	opened atomic.Int32
	mu     sync.Mutex
	last   []*portal.StaticSession
	pages  map[string]string
}

func (f *countingFactory) New(ctx context.Context) (portal.Session, error) {
	f.opened.Add(1)
	s := portal.NewStaticSession(f.pages)
	f.mu.Lock()
	f.last = append(f.last, s)
	f.mu.Unlock()
	return s, nil
}

func (f *countingFactory) sessions() []*portal.StaticSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*portal.StaticSession(nil), f.last...)
}

func newCoordinator(cfg Config, f portal.Factory, runner Runner) *Coordinator {
	x := extract.New(extract.Config{BaseURL: testBase}, logx.Nop())
	return New(cfg, f, x, nil, runner, logx.Nop())
}

func TestRefreshReusesSession(t *testing.T) {
	t.Parallel()
	f := &countingFactory{pages: map[string]string{listURL: "<html></html>", dateURL: lessonsPage}}
	c := newCoordinator(Config{}, f.New, nil)

	for i := 0; i < 3; i++ {
		res, err := c.Refresh(context.Background(), testDate)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if res.Kind != schedule.KindLessons || len(res.Lessons) != 2 {
			t.Fatalf("result = %+v", res)
		}
		if res.Lessons[0].Subject != "Алгебра" || res.Lessons[0].StartTime != "08:30" {
			t.Fatalf("first lesson = %+v", res.Lessons[0])
		}
	}
	if got := f.opened.Load(); got != 1 {
		t.Fatalf("sessions opened = %d, want 1", got)
	}
}

func TestFailedFetchDiscardsSession(t *testing.T) {
	t.Parallel()
	f := &countingFactory{pages: map[string]string{listURL: "<html></html>", dateURL: "<html><body>пусто</body></html>"}}
	c := newCoordinator(Config{}, f.New, nil)

	_, err := c.Refresh(context.Background(), testDate)
	if !errors.Is(err, schedule.ErrExtractionFailed) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrExtractionFailed)
	}
	if c.Active() {
		t.Fatalf("session kept after failure")
	}
	if s := f.sessions(); len(s) != 1 || !s[0].Closed() {
		t.Fatalf("failed session was not closed")
	}

	_, _ = c.Refresh(context.Background(), testDate)
	if got := f.opened.Load(); got != 2 {
		t.Fatalf("sessions opened = %d, want 2", got)
	}
}

type blockingSession struct {
	*portal.StaticSession
}

func (b blockingSession) Navigate(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRefreshTimeout(t *testing.T) {
	t.Parallel()
	var sess *portal.StaticSession
	factory := func(context.Context) (portal.Session, error) {
		sess = portal.NewStaticSession(nil)
		return blockingSession{sess}, nil
	}
	c := newCoordinator(Config{Timeout: 30 * time.Millisecond}, factory, nil)

	_, err := c.Refresh(context.Background(), testDate)
	if !errors.Is(err, schedule.ErrTimeout) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrTimeout)
	}
	if !sess.Closed() {
		t.Fatalf("timed out session was not closed")
	}
}

func TestRefreshCallerCancelIsNotTimeout(t *testing.T) {
	t.Parallel()
	factory := func(context.Context) (portal.Session, error) {
		return blockingSession{portal.NewStaticSession(nil)}, nil
	}
	c := newCoordinator(Config{Timeout: time.Minute}, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := c.Refresh(ctx, testDate)
	if !errors.Is(err, context.Canceled) || errors.Is(err, schedule.ErrTimeout) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFactoryErrorIsExtractionFailure(t *testing.T) {
	t.Parallel()
	factory := func(context.Context) (portal.Session, error) {
		return nil, errors.New("cookie file missing")
	}
	c := newCoordinator(Config{}, factory, nil)
	if _, err := c.Refresh(context.Background(), testDate); !errors.Is(err, schedule.ErrExtractionFailed) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrExtractionFailed)
	}
}

func TestRefreshThroughEngine(t *testing.T) {
	t.Parallel()
	eng := engine.New(engine.Config{Workers: 2}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop(context.Background())

	f := &countingFactory{pages: map[string]string{listURL: "<html></html>", dateURL: lessonsPage}}
	c := newCoordinator(Config{}, f.New, eng)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Refresh(ctx, testDate)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if got := f.opened.Load(); got != 1 {
		t.Fatalf("sessions opened = %d, want 1", got)
	}
}

func TestReapIdle(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 9, 15, 7, 0, 0, 0, time.UTC)
	f := &countingFactory{pages: map[string]string{listURL: "<html></html>", dateURL: lessonsPage}}
	c := newCoordinator(Config{IdleTimeout: 10 * time.Minute, Now: func() time.Time { return now }}, f.New, nil)

	if c.ReapIdle(now) {
		t.Fatalf("ReapIdle without session = true")
	}
	if _, err := c.Refresh(context.Background(), testDate); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if c.ReapIdle(now.Add(9 * time.Minute)) {
		t.Fatalf("session reaped before idle timeout")
	}
	if !c.ReapIdle(now.Add(10 * time.Minute)) {
		t.Fatalf("session not reaped after idle timeout")
	}
	if c.Active() {
		t.Fatalf("Active after reap")
	}
	if !f.sessions()[0].Closed() {
		t.Fatalf("reaped session not closed")
	}
}

func TestCooldown(t *testing.T) {
	t.Parallel()
	cd := NewCooldown(300 * time.Second)
	t0 := time.Date(2025, 9, 15, 7, 0, 0, 0, time.UTC)

	if ok, _ := cd.Check(1, testDate, t0); !ok {
		t.Fatalf("first Check = false, want true")
	}
	cd.Mark(1, testDate, t0)

	ok, remaining := cd.Check(1, testDate, t0.Add(60*time.Second))
	if ok || remaining != 240*time.Second {
		t.Fatalf("Check after 60s = %v, %v, want false, 240s", ok, remaining)
	}
	if ok, _ := cd.Check(2, testDate, t0.Add(time.Second)); !ok {
		t.Fatalf("other user blocked")
	}
	if ok, _ := cd.Check(1, "16-09-2025", t0.Add(time.Second)); !ok {
		t.Fatalf("other date blocked")
	}
	if ok, _ := cd.Check(1, testDate, t0.Add(300*time.Second)); !ok {
		t.Fatalf("Check after window = false, want true")
	}
	if n := cd.Prune(t0.Add(time.Hour)); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
}

func TestCooldownError(t *testing.T) {
	t.Parallel()
	var err error = &CooldownError{Remaining: 239500 * time.Millisecond}
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("errors.Is(%v, ErrCooldown) = false", err)
	}
	var ce *CooldownError
	if !errors.As(err, &ce) || ce.Seconds() != 240 {
		t.Fatalf("Seconds = %d, want 240", ce.Seconds())
	}
}
