// Package normalize turns classified lessons into a canonical schedule
// result and applies presentation filters.
package normalize

import (
	"strings"

	"diarybot/internal/classify"
	"diarybot/internal/extract"
	"diarybot/internal/schedule"
)

// Build classifies every raw node and normalizes the survivors.
// Nodes that were found but all skipped yield NoLessons.
func Build(c *classify.Classifier, out extract.Outcome) schedule.Result {
	if out.NoLessons {
		return schedule.NoLessons()
	}
	lessons := make([]schedule.Lesson, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		if l, ok := c.Classify(n); ok {
			lessons = append(lessons, l)
		}
	}
	return Normalize(lessons)
}

// Normalize drops noise subjects and keeps the first lesson per subject.
func Normalize(lessons []schedule.Lesson) schedule.Result {
	seen := make(map[string]struct{}, len(lessons))
	out := make([]schedule.Lesson, 0, len(lessons))
	for _, l := range lessons {
		subject := strings.TrimSpace(l.Subject)
		if subject == "" || classify.IsNoise(subject) {
			continue
		}
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		out = append(out, l)
	}
	return schedule.Lessons(out)
}

const (
	groupPrefix  = "группа"
	groupKeepTag = "овз"
)

// Visible reports whether a lesson is shown to users. Subgroup entries
// ("Группа ...") are hidden unless they are ОВЗ groups.
func Visible(l schedule.Lesson) bool {
	s := strings.ToLower(strings.TrimSpace(l.Subject))
	if !strings.HasPrefix(s, groupPrefix) {
		return true
	}
	return strings.Contains(s, groupKeepTag)
}

// ForDisplay returns the lessons that pass Visible, preserving order.
func ForDisplay(lessons []schedule.Lesson) []schedule.Lesson {
	out := make([]schedule.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if Visible(l) {
			out = append(out, l)
		}
	}
	return out
}
