package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	digest, unsubDigest := b.Subscribe(4, DigestSent)
	defer unsubAll()

	b.Publish(Event{Type: ScheduleRefreshed, Data: "16-09-2025"})
	b.Publish(Event{Type: DigestSent, Data: int64(42)})

	if got := len(all); got != 2 {
		t.Fatalf("len(all) = %d, want 2", got)
	}
	if got := len(digest); got != 1 {
		t.Fatalf("len(digest) = %d, want 1", got)
	}
	e := <-digest
	if e.Type != DigestSent || e.Time.IsZero() {
		t.Fatalf("event = %+v, want digest.sent with time", e)
	}

	unsubDigest()
	unsubDigest()
	b.Publish(Event{Type: DigestSent})
	if _, ok := <-digest; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: TaskStarted})
	b.Publish(Event{Type: TaskFinished})
	if got := len(ch); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
	if e := <-ch; e.Type != TaskStarted {
		t.Fatalf("first event = %q, want task.started", e.Type)
	}
}
