package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	// KeyLayout is the date key used by the portal URL and the cache.
	KeyLayout = "02-01-2006"
	// DisplayLayout is the user-facing date format.
	DisplayLayout = "02.01.2006"
)

var weekdays = [...]string{
	time.Sunday:    "Воскресенье",
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
}

func DateKey(t time.Time) string { return t.Format(KeyLayout) }

func DisplayDate(t time.Time) string { return t.Format(DisplayLayout) }

// ParseDateKey accepts DD-MM-YYYY and DD.MM.YYYY.
func ParseDateKey(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{KeyLayout, DisplayLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want DD-MM-YYYY)", s)
}

// NormalizeKey re-renders a user-supplied date as a cache key.
func NormalizeKey(s string) (string, error) {
	t, err := ParseDateKey(s, time.UTC)
	if err != nil {
		return "", err
	}
	return DateKey(t), nil
}

func WeekdayName(t time.Time) string { return weekdays[t.Weekday()] }

// WeekStart returns midnight of the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
