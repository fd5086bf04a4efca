package portal

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Page is a parsed HTML document together with the URL it was served from.
type Page struct {
	URL    string
	Markup string
	Doc    *html.Node
}

func ParsePage(url, markup string) (*Page, error) {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return &Page{URL: url, Markup: markup, Doc: doc}, nil
}

func (p *Page) Text() string {
	if p == nil || p.Doc == nil {
		return ""
	}
	return VisibleText(p.Doc)
}

func (p *Page) Find(kind SelectorKind, selector string) ([]*html.Node, error) {
	if p == nil || p.Doc == nil {
		return nil, ErrNoPage
	}
	return FindIn(p.Doc, kind, selector)
}

// FindIn evaluates selector relative to root.
func FindIn(root *html.Node, kind SelectorKind, selector string) ([]*html.Node, error) {
	switch kind {
	case ByXPath:
		nodes, err := htmlquery.QueryAll(root, selector)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", selector, err)
		}
		return nodes, nil
	case ByCSS:
		doc := goquery.NewDocumentFromNode(root)
		return doc.Find(selector).Nodes, nil
	default:
		return nil, fmt.Errorf("unsupported selector kind %s", kind)
	}
}

// FindText returns the visible text of the first node matching an XPath
// relative to n, or "" when nothing matches.
func FindText(n *html.Node, xpath string) string {
	if n == nil {
		return ""
	}
	sub, err := htmlquery.Query(n, xpath)
	if err != nil || sub == nil {
		return ""
	}
	return strings.TrimSpace(VisibleText(sub))
}
