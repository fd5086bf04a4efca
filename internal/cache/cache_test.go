package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"diarybot/internal/schedule"
	"diarybot/internal/storage"
	"diarybot/pkg/logx"
)

type fakeFetcher struct {
	calls atomic.Int32
	mu    sync.Mutex
	res   schedule.Result
	err   error
	gate  chan struct{}
}

func (f *fakeFetcher) set(res schedule.Result, err error) {
	f.mu.Lock()
	f.res, f.err = res, err
	f.mu.Unlock()
}

func (f *fakeFetcher) Refresh(ctx context.Context, _ string) (schedule.Result, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return schedule.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res, f.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, f Fetcher, st storage.Store) (*Cache, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	if st == nil {
		st = storage.NewMemory()
	}
	return New(Config{TTL: 48 * time.Hour, Now: clk.Now}, f, st, logx.Nop(), nil), clk
}

var algebra = schedule.Lessons([]schedule.Lesson{schedule.NewLesson("Алгебра")})

func TestFreshHitSkipsFetch(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	c, clk := newTestCache(t, f, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	clk.Advance(47 * time.Hour)
	e, err := c.Get(ctx, "10-03-2025", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if e.Result.Kind != schedule.KindLessons || len(e.Result.Lessons) != 1 {
		t.Fatalf("result = %+v", e.Result)
	}

	if _, err := c.Get(ctx, "10-03-2025", true); err != nil {
		t.Fatalf("forced Get: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls after force = %d, want 2", got)
	}
}

func TestStaleEntryRefetched(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	c, clk := newTestCache(t, f, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	clk.Advance(49 * time.Hour)
	f.set(schedule.NoLessons(), nil)
	e, err := c.Get(ctx, "10-03-2025", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Result.Kind != schedule.KindNoLessons {
		t.Fatalf("kind = %v, want %v", e.Result.Kind, schedule.KindNoLessons)
	}
	if !e.FetchedAt.Equal(clk.Now()) {
		t.Fatalf("FetchedAt = %v, want %v", e.FetchedAt, clk.Now())
	}
}

func TestFailureFallsBackToStale(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	c, clk := newTestCache(t, f, nil)
	ctx := context.Background()

	first, err := c.Get(ctx, "10-03-2025", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	clk.Advance(72 * time.Hour)

	for _, failure := range []error{schedule.ErrExtractionFailed, schedule.ErrAuthRequired, schedule.ErrTimeout} {
		f.set(schedule.Result{}, failure)
		e, err := c.Get(ctx, "10-03-2025", false)
		if err != nil {
			t.Fatalf("Get with %v: %v", failure, err)
		}
		if !e.FetchedAt.Equal(first.FetchedAt) || e.Result.Kind != schedule.KindLessons {
			t.Fatalf("fallback entry = %+v, want the first entry", e)
		}
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"extraction", schedule.ErrExtractionFailed, schedule.ErrExtractionFailed},
		{"auth", schedule.ErrAuthRequired, schedule.ErrAuthRequired},
		{"timeout", schedule.ErrTimeout, schedule.ErrExtractionFailed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeFetcher{err: tt.err}
			c, _ := newTestCache(t, f, nil)
			_, err := c.Get(context.Background(), "11-03-2025", false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, ok := c.Peek("11-03-2025"); ok {
				t.Fatalf("failure was cached")
			}
		})
	}
}

func TestFailedKindIsNotCached(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: schedule.Failed()}
	c, _ := newTestCache(t, f, nil)
	if _, err := c.Get(context.Background(), "11-03-2025", false); !errors.Is(err, schedule.ErrExtractionFailed) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrExtractionFailed)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra, gate: make(chan struct{})}
	c, _ := newTestCache(t, f, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "12-03-2025", false)
			errs <- err
		}()
	}
	// Let every caller reach the in-flight fetch before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := f.calls.Load(); got < 1 || got > n {
		t.Fatalf("fetch calls = %d", got)
	}
	if _, ok := c.Peek("12-03-2025"); !ok {
		t.Fatalf("entry missing after shared fetch")
	}
}

func TestSweepDropsOldEntries(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	c, clk := newTestCache(t, f, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "01-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	clk.Advance(90 * time.Hour)
	if _, err := c.Get(ctx, "02-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	clk.Advance(7 * time.Hour)

	if got := c.Sweep(ctx); got != 1 {
		t.Fatalf("Sweep = %d, want 1", got)
	}
	if _, ok := c.Peek("01-03-2025"); ok {
		t.Fatalf("old entry survived sweep")
	}
	if _, ok := c.Peek("02-03-2025"); !ok {
		t.Fatalf("recent entry was swept")
	}
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	f := &fakeFetcher{res: algebra}
	c, _ := newTestCache(t, f, st)
	ctx := context.Background()
	if _, err := c.Get(ctx, "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}

	raw, ok, err := st.Load(ctx, SnapshotName)
	if err != nil || !ok {
		t.Fatalf("snapshot missing: ok=%v err=%v", ok, err)
	}
	var saved []schedule.Entry
	if err := json.Unmarshal(raw, &saved); err != nil || len(saved) != 1 {
		t.Fatalf("snapshot = %s (%v)", raw, err)
	}

	again, _ := newTestCache(t, &fakeFetcher{err: schedule.ErrTimeout}, st)
	if err := again.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := again.Peek("10-03-2025")
	if !ok || e.Result.Lessons[0].Subject != "Алгебра" {
		t.Fatalf("restored entry = %+v, %v", e, ok)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	c, _ := newTestCache(t, f, failingStore{storage.NewMemory()})
	if _, err := c.Get(context.Background(), "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := c.Peek("10-03-2025"); !ok {
		t.Fatalf("entry missing after failed save")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records returns the decoded JSON log lines.
func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestExpiredSessionLogsErrorOnFallback(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	clk := &clock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	logs := &syncBuffer{}
	c := New(Config{TTL: 48 * time.Hour, Now: clk.Now}, f, storage.NewMemory(), logx.NewJSON(logs, "warn"), nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	f.set(schedule.Result{}, fmt.Errorf("%w: redirected to /login", schedule.ErrAuthRequired))

	e, err := c.Get(ctx, "10-03-2025", true)
	if err != nil {
		t.Fatalf("forced Get: %v", err)
	}
	if e.Result.Kind != schedule.KindLessons {
		t.Fatalf("fallback kind = %v, want %v", e.Result.Kind, schedule.KindLessons)
	}

	var found bool
	for _, rec := range logs.records(t) {
		if rec["level"] == "error" && rec["date"] == "10-03-2025" && rec["fallback"] == true {
			found = true
		}
	}
	if !found {
		t.Fatalf("no error record for the expired session, logs = %v", logs.records(t))
	}
}

func TestOtherFailuresLogWarnOnFallback(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra}
	clk := &clock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	logs := &syncBuffer{}
	c := New(Config{TTL: 48 * time.Hour, Now: clk.Now}, f, storage.NewMemory(), logx.NewJSON(logs, "warn"), nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "10-03-2025", false); err != nil {
		t.Fatalf("Get: %v", err)
	}
	f.set(schedule.Result{}, schedule.ErrExtractionFailed)
	if _, err := c.Get(ctx, "10-03-2025", true); err != nil {
		t.Fatalf("forced Get: %v", err)
	}

	recs := logs.records(t)
	if len(recs) != 1 || recs[0]["level"] != "warn" {
		t.Fatalf("records = %v, want one warn record", recs)
	}
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{res: algebra, gate: make(chan struct{})}
	c, _ := newTestCache(t, f, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Get(leaderCtx, "10-03-2025", false)
		leaderErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader err = %v, want %v", err, context.Canceled)
	}

	followerErr := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "10-03-2025", false)
		followerErr <- err
	}()
	close(f.gate)

	if err := <-followerErr; err != nil {
		t.Fatalf("follower Get: %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if _, ok := c.Peek("10-03-2025"); !ok {
		t.Fatalf("entry not cached after the shared fetch")
	}
}
