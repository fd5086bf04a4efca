// Package extract drives a portal session to a date's schedule page and
// pulls out the raw lesson elements.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"diarybot/internal/portal"
	"diarybot/internal/schedule"
	"diarybot/pkg/logx"
)

const DefaultBaseURL = "https://authedu.mosreg.ru"

var (
	// Checked on every page before any selector runs.
	noLessonsPhrases = []string{
		"Уроков и мероприятий нет",
		"Уроков и мероприятий на этот день не найдено",
	}
	// Checked (lowercased) only after every strategy came back empty.
	weakNoLessonsPhrases = []string{
		"уроков и мероприятий нет",
		"уроков нет",
		"нет уроков",
		"выходной",
		"не найдено",
	}
	loginPhrases = []string{"вход в систему", "авторизация"}
)

type Config struct {
	BaseURL    string
	SettleList time.Duration
	SettlePage time.Duration
	Strategies []Strategy
}

// Outcome is either NoLessons or a non-empty list of nodes.
type Outcome struct {
	NoLessons bool
	Strategy  string
	Nodes     []RawNode
}

type Extractor struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Extractor {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	return &Extractor{cfg: cfg, log: log}
}

func (x *Extractor) ListURL() string { return x.cfg.BaseURL + "/diary/schedules" }

func (x *Extractor) DateURL(dateKey string) string {
	return x.cfg.BaseURL + "/diary/schedules/schedule/?date=" + dateKey
}

// Extract loads the schedule page for dateKey (DD-MM-YYYY).
func (x *Extractor) Extract(ctx context.Context, s portal.Session, dateKey string) (Outcome, error) {
	log := x.log.With(logx.String("date", dateKey))

	if err := x.visit(ctx, s, x.ListURL(), x.cfg.SettleList); err != nil {
		return Outcome{}, err
	}
	if err := x.visit(ctx, s, x.DateURL(dateKey), x.cfg.SettlePage); err != nil {
		return Outcome{}, err
	}

	if isLoginURL(s.CurrentURL()) {
		return Outcome{}, fmt.Errorf("%w: redirected to %s", schedule.ErrAuthRequired, s.CurrentURL())
	}

	text := s.PageText()
	if containsAny(text, noLessonsPhrases) {
		log.Debug("no lessons marker found")
		return Outcome{NoLessons: true}, nil
	}

	for _, st := range x.cfg.Strategies {
		nodes, err := st.Match(s)
		if err != nil {
			log.Warn("strategy failed", logx.String("strategy", st.Name), logx.Err(err))
			continue
		}
		if len(nodes) == 0 {
			continue
		}
		out := Outcome{Strategy: st.Name, Nodes: make([]RawNode, 0, len(nodes))}
		for _, n := range nodes {
			out.Nodes = append(out.Nodes, rawNode(n))
		}
		log.Debug("lesson nodes found", logx.String("strategy", st.Name), logx.Int("count", len(nodes)))
		return out, nil
	}

	lower := strings.ToLower(text)
	if containsAny(lower, loginPhrases) {
		return Outcome{}, fmt.Errorf("%w: login form on %s", schedule.ErrAuthRequired, s.CurrentURL())
	}
	if containsAny(lower, weakNoLessonsPhrases) {
		return Outcome{NoLessons: true}, nil
	}

	log.Warn("no lesson elements matched",
		logx.String("url", s.CurrentURL()),
		logx.String("snapshot", snapshot(text, 500)),
	)
	return Outcome{}, fmt.Errorf("%w: no lesson elements on %s", schedule.ErrExtractionFailed, s.CurrentURL())
}

func (x *Extractor) visit(ctx context.Context, s portal.Session, url string, settle time.Duration) error {
	if err := s.Navigate(ctx, url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", schedule.ErrExtractionFailed, err)
	}
	return sleepCtx(ctx, settle)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isLoginURL(u string) bool {
	u = strings.ToLower(u)
	return strings.Contains(u, "/login") || strings.Contains(u, "/auth/")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func snapshot(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
