package portal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/html"
)

type SelectorKind int

const (
	ByXPath SelectorKind = iota
	ByCSS
)

func (k SelectorKind) String() string {
	switch k {
	case ByXPath:
		return "xpath"
	case ByCSS:
		return "css"
	default:
		return fmt.Sprintf("selector(%d)", int(k))
	}
}

var (
	ErrNoPage = errors.New("portal: no page loaded")
	ErrClosed = errors.New("portal: session closed")
)

// Session is a stateful browsing context against the portal.
// Implementations are not safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL() string
	PageText() string
	PageMarkup() string
	Find(kind SelectorKind, selector string) ([]*html.Node, error)
	Close() error
}

// Factory creates a fresh session, typically with stored cookies applied.
type Factory func(ctx context.Context) (Session, error)
