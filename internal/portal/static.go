package portal

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/net/html"
)

// StaticSession serves canned markup per URL. It backs offline runs and
// tests; unknown URLs fail to navigate.
type StaticSession struct {
	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	page      *Page
	visits    []string
	closed    bool
}

func NewStaticSession(pages map[string]string) *StaticSession {
	cp := make(map[string]string, len(pages))
	for k, v := range pages {
		cp[k] = v
	}
	return &StaticSession{pages: cp, redirects: map[string]string{}}
}

// Redirect makes navigation to from land on to.
func (s *StaticSession) Redirect(from, to string) *StaticSession {
	s.mu.Lock()
	s.redirects[from] = to
	s.mu.Unlock()
	return s
}

func (s *StaticSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.visits = append(s.visits, url)
	if to, ok := s.redirects[url]; ok {
		url = to
	}
	markup, ok := s.pages[url]
	if !ok {
		return fmt.Errorf("navigate %s: not found", url)
	}
	p, err := ParsePage(url, markup)
	if err != nil {
		return err
	}
	s.page = p
	return nil
}

func (s *StaticSession) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

func (s *StaticSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StaticSession) cur() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *StaticSession) CurrentURL() string {
	if p := s.cur(); p != nil {
		return p.URL
	}
	return ""
}

func (s *StaticSession) PageText() string { return s.cur().Text() }

func (s *StaticSession) PageMarkup() string {
	if p := s.cur(); p != nil {
		return p.Markup
	}
	return ""
}

func (s *StaticSession) Find(kind SelectorKind, selector string) ([]*html.Node, error) {
	return s.cur().Find(kind, selector)
}

func (s *StaticSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
