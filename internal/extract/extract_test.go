package extract

import (
	"context"
	"errors"
	"testing"

	"diarybot/internal/portal"
	"diarybot/internal/schedule"
	"diarybot/pkg/logx"
)

const (
	testBase = "https://diary.test"
	testDate = "15-09-2025"
	listURL  = testBase + "/diary/schedules"
	dateURL  = testBase + "/diary/schedules/schedule/?date=" + testDate
)

const listPage = `<html><body><h1>Расписание</h1></body></html>`

const lessonsPage = `<html><body><div class="lessons-list"><div><div><div>
<a href="/diary/lesson/1"><div><h6>Алгебра</h6><div>meta</div><div><div><div>x</div><div><p>Учить параграф 5</p></div></div></div></div><div>08:30-09:15</div></a>
<a href="/diary/lesson/2"><div><h6>Физика</h6></div><div>09:25-10:10</div></a>
</div></div></div></div></body></html>`

func newTestExtractor() *Extractor {
	return New(Config{BaseURL: testBase + "/"}, logx.Nop())
}

func session(page string) *portal.StaticSession {
	return portal.NewStaticSession(map[string]string{listURL: listPage, dateURL: page})
}

func TestExtractFindsLessonNodes(t *testing.T) {
	t.Parallel()

	s := session(lessonsPage)
	out, err := newTestExtractor().Extract(context.Background(), s, testDate)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.NoLessons {
		t.Fatalf("NoLessons = true, want nodes")
	}
	if out.Strategy != "lessons-list" {
		t.Fatalf("Strategy = %q, want lessons-list", out.Strategy)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(out.Nodes))
	}
	if got := out.Nodes[0].Title; got != "Алгебра" {
		t.Fatalf("Title = %q, want Алгебра", got)
	}
	if got := out.Nodes[0].Homework; got != "Учить параграф 5" {
		t.Fatalf("Homework = %q, want Учить параграф 5", got)
	}
	if got := out.Nodes[1].Homework; got != "" {
		t.Fatalf("second Homework = %q, want empty", got)
	}
	if visits := s.Visits(); len(visits) != 2 || visits[0] != listURL || visits[1] != dateURL {
		t.Fatalf("visits = %v, want list then date page", visits)
	}
}

func TestExtractNoLessonsWinsOverSelectors(t *testing.T) {
	t.Parallel()

	page := `<html><body><p>Уроков и мероприятий нет</p>` + lessonsPage[len("<html><body>"):]
	out, err := newTestExtractor().Extract(context.Background(), session(page), testDate)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !out.NoLessons || len(out.Nodes) != 0 {
		t.Fatalf("Outcome = %+v, want NoLessons without nodes", out)
	}
}

func TestExtractFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		page          string
		wantNoLessons bool
		wantErr       error
		wantStrategy  string
	}{
		{
			name:         "href strategy",
			page:         `<html><body><section><a href="/diary/lesson/7">Химия</a></section></body></html>`,
			wantStrategy: "lesson-href",
		},
		{
			name:         "css card",
			page:         `<html><body><div class="lesson-card">Химия</div></body></html>`,
			wantStrategy: "lesson-card",
		},
		{
			name:          "weak phrase after empty selectors",
			page:          `<html><body><div>Сегодня выходной</div></body></html>`,
			wantNoLessons: true,
		},
		{
			name:          "events not found after empty selectors",
			page:          `<html><body><div>Мероприятия не найдено</div></body></html>`,
			wantNoLessons: true,
		},
		{
			name:    "missing page is not a day off",
			page:    `<html><body><h1>Страница не найдена</h1></body></html>`,
			wantErr: schedule.ErrExtractionFailed,
		},
		{
			name:    "nothing recognizable",
			page:    `<html><body><div>Что-то пошло не так</div></body></html>`,
			wantErr: schedule.ErrExtractionFailed,
		},
		{
			name:    "login form",
			page:    `<html><body><form>Вход в систему</form></body></html>`,
			wantErr: schedule.ErrAuthRequired,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := newTestExtractor().Extract(context.Background(), session(tt.page), testDate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if out.NoLessons != tt.wantNoLessons {
				t.Fatalf("NoLessons = %v, want %v", out.NoLessons, tt.wantNoLessons)
			}
			if out.Strategy != tt.wantStrategy {
				t.Fatalf("Strategy = %q, want %q", out.Strategy, tt.wantStrategy)
			}
		})
	}
}

func TestExtractLoginRedirect(t *testing.T) {
	t.Parallel()

	loginURL := testBase + "/login"
	s := portal.NewStaticSession(map[string]string{
		listURL:  listPage,
		loginURL: `<html><body>Войти</body></html>`,
	}).Redirect(dateURL, loginURL)

	_, err := newTestExtractor().Extract(context.Background(), s, testDate)
	if !errors.Is(err, schedule.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
}

func TestExtractNavigationErrors(t *testing.T) {
	t.Parallel()

	s := portal.NewStaticSession(map[string]string{listURL: listPage})
	_, err := newTestExtractor().Extract(context.Background(), s, testDate)
	if !errors.Is(err, schedule.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestExtractor().Extract(ctx, session(lessonsPage), testDate)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
