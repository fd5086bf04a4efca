package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"diarybot/pkg/logx"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type Options struct {
	UserAgent      string
	RequestTimeout time.Duration
	CookieFile     string
}

// CollySession drives a colly collector: one cookie jar, sequential
// navigations, the last response kept as the current page.
type CollySession struct {
	c   *colly.Collector
	log logx.Logger

	mu     sync.Mutex
	page   *Page
	closed bool
}

// NewFactory returns a Factory that builds a CollySession with the cookie
// export at opts.CookieFile applied. The file is re-read on every call so
// replacing it on disk takes effect at the next session.
func NewFactory(opts Options, log logx.Logger) Factory {
	return func(ctx context.Context) (Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cookies, err := LoadCookies(opts.CookieFile)
		if err != nil {
			return nil, err
		}
		s, err := NewCollySession(opts, log)
		if err != nil {
			return nil, err
		}
		if err := s.SetCookies(cookies); err != nil {
			_ = s.Close()
			return nil, err
		}
		log.Debug("portal session created", logx.Int("cookies", len(cookies)))
		return s, nil
	}
}

func NewCollySession(opts Options, log logx.Logger) (*CollySession, error) {
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
	)
	if opts.RequestTimeout > 0 {
		c.SetRequestTimeout(opts.RequestTimeout)
	}
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1}); err != nil {
		return nil, fmt.Errorf("colly limit: %w", err)
	}

	s := &CollySession{c: c, log: log}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "ru-RU,ru;q=0.9")
		log.Trace("portal request", logx.String("url", r.URL.String()))
	})
	c.OnResponse(func(r *colly.Response) {
		page, err := ParsePage(r.Request.URL.String(), string(r.Body))
		if err != nil {
			log.Warn("portal response not parsable", logx.String("url", r.Request.URL.String()), logx.Err(err))
			return
		}
		s.mu.Lock()
		s.page = page
		s.mu.Unlock()
	})
	return s, nil
}

func (s *CollySession) SetCookies(cs []Cookie) error {
	for origin, hc := range byOrigin(cs) {
		if err := s.c.SetCookies(origin, hc); err != nil {
			return fmt.Errorf("set cookies for %s: %w", origin, err)
		}
	}
	return nil
}

// Navigate loads url and makes it the current page. Cancellation of ctx
// returns early; the underlying request is bounded by the request timeout.
func (s *CollySession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.c.Visit(url) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		return nil
	}
}

func (s *CollySession) current() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *CollySession) CurrentURL() string {
	if p := s.current(); p != nil {
		return p.URL
	}
	return ""
}

func (s *CollySession) PageText() string { return s.current().Text() }

func (s *CollySession) PageMarkup() string {
	if p := s.current(); p != nil {
		return p.Markup
	}
	return ""
}

func (s *CollySession) Find(kind SelectorKind, selector string) ([]*html.Node, error) {
	return s.current().Find(kind, selector)
}

func (s *CollySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.page = nil
	return nil
}
