package extract

import (
	"golang.org/x/net/html"

	"diarybot/internal/portal"
)

// Finder is the part of a session the strategies need.
type Finder interface {
	Find(kind portal.SelectorKind, selector string) ([]*html.Node, error)
}

// Strategy locates lesson nodes on a loaded schedule page.
type Strategy struct {
	Name     string
	Kind     portal.SelectorKind
	Selector string
}

func (s Strategy) Match(f Finder) ([]*html.Node, error) {
	return f.Find(s.Kind, s.Selector)
}

// DefaultStrategies is ordered from the most specific selector to the most
// tolerant one. The first strategy with at least one match wins.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "absolute", Kind: portal.ByXPath, Selector: "/html/body/div/div/main/div[2]/section/div/div/div/div[2]/div/div/div/div/div/a"},
		{Name: "lessons-list", Kind: portal.ByXPath, Selector: "//div[contains(@class, 'lessons-list')]/div/div/div/a"},
		{Name: "lesson-href", Kind: portal.ByXPath, Selector: "//a[contains(@href, '/diary/lesson')]"},
		{Name: "lesson-card", Kind: portal.ByCSS, Selector: ".lesson-card"},
	}
}

const (
	titlePath    = "./div[1]/h6"
	homeworkPath = "./div[1]/div[2]/div/div[2]/p"
)

// RawNode is the text of one matched lesson element plus the optional
// sub-elements that carry the title and homework.
type RawNode struct {
	Text     string
	Title    string
	Homework string
}

func rawNode(n *html.Node) RawNode {
	return RawNode{
		Text:     portal.VisibleText(n),
		Title:    portal.FindText(n, titlePath),
		Homework: portal.FindText(n, homeworkPath),
	}
}
