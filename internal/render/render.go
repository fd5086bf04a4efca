// Package render turns schedule results into chat messages.
package render

import (
	"fmt"
	"strings"
	"time"

	"diarybot/internal/normalize"
	"diarybot/internal/schedule"
)

var subjectEmoji = []struct{ word, emoji string }{
	{"математика", "🔢"},
	{"алгебра", "🧮"},
	{"геометрия", "📐"},
	{"русский", "🇷🇺"},
	{"литература", "📚"},
	{"английский", "🇬🇧"},
	{"иностранный", "🌍"},
	{"история", "🏛️"},
	{"обществознание", "👥"},
	{"география", "🗺️"},
	{"биология", "🧬"},
	{"химия", "🧪"},
	{"физика", "⚛️"},
	{"информатика", "💻"},
	{"физическая культура", "🏃"},
	{"физкультура", "🏋️"},
	{"изо", "🎨"},
	{"музыка", "🎵"},
	{"технология", "🔧"},
	{"обж", "🚨"},
	{"группа", "👥"},
}

func emojiFor(subject string) string {
	s := strings.ToLower(subject)
	for _, e := range subjectEmoji {
		if strings.Contains(s, e.word) {
			return e.emoji
		}
	}
	return "📝"
}

// Header is the title line for day.
func Header(day time.Time) string {
	return fmt.Sprintf("📅 Расписание на %s (%s)", schedule.DisplayDate(day), schedule.WeekdayName(day))
}

// NoLessons is the message for a day without visible lessons.
func NoLessons(day time.Time) string {
	return fmt.Sprintf("❌ На %s (%s) уроков нет.", schedule.DisplayDate(day), schedule.WeekdayName(day))
}

// Schedule renders the visible lessons of res. done holds lesson indexes
// (0-based, in display order) the reader marked as done.
func Schedule(day time.Time, res schedule.Result, done map[int]bool) string {
	lessons := normalize.ForDisplay(res.Lessons)
	if res.Kind != schedule.KindLessons || len(lessons) == 0 {
		return NoLessons(day)
	}

	var b strings.Builder
	b.WriteString(Header(day))
	b.WriteString("\n\n")
	for i, l := range lessons {
		fmt.Fprintf(&b, "%s %d. %s", emojiFor(l.Subject), i+1, l.Subject)
		if t := timeRange(l); t != "" {
			b.WriteString(" ⏰ ")
			b.WriteString(t)
		}
		if l.Room != schedule.Unspecified && l.Room != "" {
			fmt.Fprintf(&b, " 🚪 %s", l.Room)
		}
		b.WriteByte('\n')
		b.WriteString(homeworkLine(l, done[i]))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// WeekLine is the one-line summary for day used by the week overview.
func WeekLine(day time.Time, res schedule.Result, err error) string {
	prefix := fmt.Sprintf("%s %s", schedule.WeekdayName(day), day.Format("02.01"))
	if err != nil {
		return prefix + ": ⚠️ не удалось получить"
	}
	lessons := normalize.ForDisplay(res.Lessons)
	if res.Kind != schedule.KindLessons || len(lessons) == 0 {
		return prefix + ": уроков нет"
	}
	names := make([]string, 0, len(lessons))
	for _, l := range lessons {
		names = append(names, l.Subject)
	}
	return fmt.Sprintf("%s: %d ур. (%s)", prefix, len(lessons), strings.Join(names, ", "))
}

// WeekHeader titles the Monday-to-Sunday overview starting at monday.
func WeekHeader(monday time.Time) string {
	return fmt.Sprintf("📆 Расписание на неделю (%s - %s)", monday.Format("02.01"), monday.AddDate(0, 0, 6).Format("02.01"))
}

func timeRange(l schedule.Lesson) string {
	if l.StartTime == schedule.Unspecified || l.StartTime == "" {
		return ""
	}
	if l.EndTime == schedule.Unspecified || l.EndTime == "" {
		return l.StartTime
	}
	return l.StartTime + " - " + l.EndTime
}

func homeworkLine(l schedule.Lesson, done bool) string {
	hw := "без дз"
	mark := "✅"
	if l.HasHomework() {
		hw = l.Homework
		low := strings.ToLower(hw)
		if !strings.Contains(low, "нет") && !strings.Contains(low, "без") {
			mark = "📒"
		}
	}
	line := mark + " ДЗ: " + hw
	if done {
		line += " (сделано ✔️)"
	}
	return line
}
