// Package classify turns the free text of a lesson element into a
// structured schedule.Lesson.
//
// Each line goes through an ordered chain of rules; the first rule whose
// predicate holds assigns the line to its field. Later lines overwrite
// earlier ones for the same field. The classifier keeps no state between
// calls.
package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"diarybot/internal/extract"
	"diarybot/internal/schedule"
)

var noiseWords = []string{
	"дневник", "библиотека", "портфолио", "справка", "учащийся",
	"расписание", "задания", "оценки", "создать", "учёба", "школа",
	"олимпиады", "версия", "написать нам",
}

var homeworkWords = []string{
	"дз:", "домашнее задание:", "задание:", "выполнить:", "учить",
	"прочитать", "выучить", "сделать", "подготовить", "параграф",
	"упражнение", "ex.", "exercise", "activity", "student's book",
	"workbook", "п.", "стр.", "с.", "записать", "решить",
}

var teacherWords = []string{
	"преподаватель:", "учитель:", "внеурочная деятельность", "элективный курс",
}

var (
	homeworkPrefixes = []string{"дз:", "домашнее задание:", "задание:"}
	teacherPrefixes  = []string{"учитель:", "преподаватель:"}
	roomLabel        = regexp.MustCompile(`(?i)кабинет`)
)

// Rule assigns a single line to a lesson field.
type Rule struct {
	Name  string
	Match func(line string) bool
	Apply func(l *schedule.Lesson, line string)
}

// DefaultRules returns the rule chain in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "time", Match: isTime, Apply: applyTime},
		{Name: "room", Match: isRoom, Apply: applyRoom},
		{Name: "homework", Match: isHomework, Apply: applyHomework},
		{Name: "teacher", Match: isTeacher, Apply: applyTeacher},
	}
}

type Classifier struct {
	rules []Rule
}

func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the lesson for n, or ok=false when n is not a lesson.
func (c *Classifier) Classify(n extract.RawNode) (schedule.Lesson, bool) {
	lines := splitLines(n.Text)

	subject := strings.TrimSpace(n.Title)
	if subject == "" && len(lines) > 0 {
		subject = lines[0]
	}
	if subject == "" || IsNoise(subject) {
		return schedule.Lesson{}, false
	}

	l := schedule.NewLesson(subject)
	for _, line := range lines {
		if line == subject {
			continue
		}
		for _, r := range c.rules {
			if r.Match(line) {
				r.Apply(&l, line)
				break
			}
		}
	}

	if hw := strings.TrimSpace(n.Homework); hw != "" {
		l.Homework = hw
	}

	repair(&l)
	return l, true
}

func repair(l *schedule.Lesson) {
	if l.Teacher != schedule.Unspecified && runeLen(l.Teacher) > 50 && l.Homework == schedule.Unspecified {
		l.Homework = l.Teacher
		l.Teacher = schedule.Unspecified
	}
	if l.Teacher != schedule.Unspecified && IsNoise(l.Teacher) && !hasAny(l.Teacher, teacherWords) {
		l.Teacher = schedule.Unspecified
	}
	if l.Room != schedule.Unspecified && IsNoise(l.Room) {
		l.Room = schedule.Unspecified
	}
}

// IsNoise reports whether s contains a portal interface label.
func IsNoise(s string) bool { return hasAny(s, noiseWords) }

func isTime(line string) bool {
	return strings.Contains(line, ":") && runeLen(line) < 20
}

func applyTime(l *schedule.Lesson, line string) {
	line = strings.ReplaceAll(line, "–", "-")
	start, end, found := strings.Cut(line, "-")
	l.StartTime = strings.TrimSpace(start)
	if found {
		l.EndTime = strings.TrimSpace(end)
	}
}

func isRoom(line string) bool {
	return hasDigit(line) && runeLen(line) < 15 && !strings.Contains(line, ":")
}

func applyRoom(l *schedule.Lesson, line string) {
	l.Room = strings.TrimSpace(roomLabel.ReplaceAllString(line, ""))
}

func isHomework(line string) bool {
	n := runeLen(line)
	if n <= 3 {
		return false
	}
	return hasAny(line, homeworkWords) || (n > 30 && !hasAny(line, teacherWords))
}

func applyHomework(l *schedule.Lesson, line string) {
	l.Homework = trimPrefixesFold(line, homeworkPrefixes)
}

func isTeacher(line string) bool {
	n := runeLen(line)
	if n <= 3 {
		return false
	}
	return hasAny(line, teacherWords) || (n < 30 && !hasAny(line, homeworkWords))
}

func applyTeacher(l *schedule.Lesson, line string) {
	l.Teacher = trimPrefixesFold(line, teacherPrefixes)
}

func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func hasAny(s string, words []string) bool {
	lower := strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// trimPrefixesFold strips each prefix in order, ignoring case.
func trimPrefixesFold(s string, prefixes []string) string {
	s = strings.TrimSpace(s)
	for _, p := range prefixes {
		r := []rune(s)
		pr := utf8.RuneCountInString(p)
		if len(r) >= pr && strings.EqualFold(string(r[:pr]), p) {
			s = strings.TrimSpace(string(r[pr:]))
		}
	}
	return s
}
