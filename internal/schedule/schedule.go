// Package schedule holds the diary domain model shared by the extractor,
// the cache and the bot layer.
package schedule

import (
	"strings"
	"time"
)

// Unspecified marks a lesson field the page did not provide.
const Unspecified = "Не указано"

// Lesson is one classified lesson entry. Subject is never empty.
type Lesson struct {
	Subject   string `json:"subject"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Room      string `json:"room"`
	Teacher   string `json:"teacher"`
	Homework  string `json:"homework"`
}

// NewLesson returns a lesson with every optional field set to Unspecified.
func NewLesson(subject string) Lesson {
	return Lesson{
		Subject:   subject,
		StartTime: Unspecified,
		EndTime:   Unspecified,
		Room:      Unspecified,
		Teacher:   Unspecified,
		Homework:  Unspecified,
	}
}

// HasHomework reports whether the lesson carries a homework text.
func (l Lesson) HasHomework() bool {
	h := strings.TrimSpace(l.Homework)
	return h != "" && h != Unspecified
}

type Kind string

const (
	KindLessons          Kind = "lessons"
	KindNoLessons        Kind = "no_lessons"
	KindExtractionFailed Kind = "extraction_failed"
)

// Result is the outcome of one schedule fetch for a date.
type Result struct {
	Kind    Kind     `json:"kind"`
	Lessons []Lesson `json:"lessons,omitempty"`
}

func Lessons(ls []Lesson) Result {
	if len(ls) == 0 {
		return NoLessons()
	}
	return Result{Kind: KindLessons, Lessons: ls}
}

func NoLessons() Result { return Result{Kind: KindNoLessons} }

func Failed() Result { return Result{Kind: KindExtractionFailed} }

// Cacheable reports whether the result may be stored in the schedule cache.
func (r Result) Cacheable() bool {
	return r.Kind == KindLessons || r.Kind == KindNoLessons
}

// Entry is a cached result for one date.
type Entry struct {
	DateKey   string    `json:"date_key"`
	Result    Result    `json:"result"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Stale reports whether the entry is older than ttl at now.
func (e Entry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) > ttl
}
