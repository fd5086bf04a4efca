package render

import (
	"strings"
	"testing"
	"time"

	"diarybot/internal/schedule"
)

func lesson(subject, start, end, hw string) schedule.Lesson {
	l := schedule.NewLesson(subject)
	l.StartTime, l.EndTime = start, end
	if hw != "" {
		l.Homework = hw
	}
	return l
}

func TestScheduleRendering(t *testing.T) {
	t.Parallel()
	day := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	res := schedule.Lessons([]schedule.Lesson{
		lesson("Алгебра", "08:30", "09:15", "Учить параграф 5"),
		lesson("Группа 3", "09:25", "10:10", ""),
		lesson("Физика", "09:25", schedule.Unspecified, ""),
	})

	got := Schedule(day, res, map[int]bool{0: true})
	for _, want := range []string{
		"📅 Расписание на 15.09.2025 (Понедельник)",
		"🧮 1. Алгебра ⏰ 08:30 - 09:15",
		"📒 ДЗ: Учить параграф 5 (сделано ✔️)",
		"⚛️ 2. Физика ⏰ 09:25\n✅ ДЗ: без дз",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Schedule output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Группа 3") {
		t.Fatalf("hidden group rendered:\n%s", got)
	}
}

func TestScheduleWithoutVisibleLessons(t *testing.T) {
	t.Parallel()
	day := time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		res  schedule.Result
	}{
		{"no lessons", schedule.NoLessons()},
		{"only hidden groups", schedule.Lessons([]schedule.Lesson{lesson("Группа 1", "", "", "")})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got, want := Schedule(day, tt.res, nil), "❌ На 20.09.2025 (Суббота) уроков нет."; got != want {
				t.Fatalf("Schedule = %q, want %q", got, want)
			}
		})
	}
}

func TestWeekLine(t *testing.T) {
	t.Parallel()
	day := time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC)
	res := schedule.Lessons([]schedule.Lesson{lesson("Химия", "", "", ""), lesson("Группа_ОВЗ", "", "", "")})
	if got, want := WeekLine(day, res, nil), "Вторник 16.09: 2 ур. (Химия, Группа_ОВЗ)"; got != want {
		t.Fatalf("WeekLine = %q, want %q", got, want)
	}
	if got, want := WeekHeader(time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)), "📆 Расписание на неделю (15.09 - 21.09)"; got != want {
		t.Fatalf("WeekHeader = %q, want %q", got, want)
	}
}
