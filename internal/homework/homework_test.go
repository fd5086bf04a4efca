package homework

import (
	"context"
	"testing"
	"time"

	"diarybot/internal/storage"
	"diarybot/pkg/logx"
)

func TestSetAndStatus(t *testing.T) {
	t.Parallel()
	tr := New(storage.NewMemory(), time.UTC, logx.Nop())
	ctx := context.Background()

	if err := tr.Set(ctx, 7, "15-09-2025", 2, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Set(ctx, 7, "15-09-2025", 0, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got := tr.Status(7, "15-09-2025")
	if len(got) != 2 || !got[0] || !got[2] || got[1] {
		t.Fatalf("Status = %v, want {0,2}", got)
	}
	if other := tr.Status(8, "15-09-2025"); len(other) != 0 {
		t.Fatalf("other user Status = %v, want empty", other)
	}

	if err := tr.Set(ctx, 7, "15-09-2025", 2, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := tr.Status(7, "15-09-2025"); len(got) != 1 || !got[0] {
		t.Fatalf("Status after undone = %v, want {0}", got)
	}
	if err := tr.Set(ctx, 7, "15-09-2025", -1, true); err == nil {
		t.Fatalf("negative index accepted")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()

	tr := New(st, time.UTC, logx.Nop())
	if err := tr.Set(ctx, 1, "01-09-2025", 3, true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	again := New(st, time.UTC, logx.Nop())
	if err := again.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := again.Status(1, "01-09-2025"); !got[3] {
		t.Fatalf("restored Status = %v, want index 3 done", got)
	}
}

func TestPruneDropsOldDates(t *testing.T) {
	t.Parallel()
	tr := New(storage.NewMemory(), time.UTC, logx.Nop())
	ctx := context.Background()
	_ = tr.Set(ctx, 1, "01-08-2025", 0, true)
	_ = tr.Set(ctx, 1, "10-09-2025", 0, true)

	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	if n := tr.Prune(ctx, now, 30*24*time.Hour); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
	if len(tr.Status(1, "01-08-2025")) != 0 {
		t.Fatalf("old marks survived prune")
	}
	if len(tr.Status(1, "10-09-2025")) != 1 {
		t.Fatalf("recent marks pruned")
	}
}
