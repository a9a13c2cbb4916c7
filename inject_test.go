package restyle

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func newTestInjector(t *testing.T, htmltext string, allowed bool) (*CSSInjector, *Document) {
	t.Helper()
	doc := mustParse(t, htmltext)
	store := &RuleStore{}
	store.setAllowed(allowed)
	return NewCSSInjector(doc, store, nil), doc
}

func countStyleElements(doc *Document) int {
	n := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if idMatcher(StyleElementID).Match(node) {
			n++
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Node())
	return n
}

func TestEnsureStyleElementSingleton(t *testing.T) {
	inj, doc := newTestInjector(t, "<html><head><title>t</title></head><body></body></html>", true)
	first := inj.EnsureStyleElement()
	second := inj.EnsureStyleElement()
	if first != second {
		t.Error("EnsureStyleElement() returned two different elements")
	}
	if got := countStyleElements(doc); got != 1 {
		t.Errorf("style elements = %d, want 1", got)
	}
	if first.Parent != doc.Head() {
		t.Error("style element is not a child of head")
	}
	if doc.Head().LastChild != first {
		t.Error("style element is not the last child of head")
	}
}

func TestSetContentReplaces(t *testing.T) {
	inj, doc := newTestInjector(t, "<p>x</p>", true)
	inj.SetContent(".a{color:red}")
	inj.SetContent(".b{color:blue}")

	el := doc.GetElementByID(StyleElementID)
	if el == nil {
		t.Fatal("no style element")
	}
	if el.FirstChild == nil || el.FirstChild != el.LastChild {
		t.Fatal("style element does not hold exactly one text node")
	}
	if got, want := el.FirstChild.Data, ".b{color:blue}"; got != want {
		t.Errorf("style text = %q, want %q", got, want)
	}
	if strings.Contains(doc.String(), ".a{color:red}") {
		t.Error("old css still in document")
	}
	if got := countStyleElements(doc); got != 1 {
		t.Errorf("style elements = %d, want 1", got)
	}

	inj.SetContent("")
	if el.FirstChild != nil {
		t.Error("empty css left text in style element")
	}
	if got := countStyleElements(doc); got != 1 {
		t.Errorf("style elements after clearing = %d, want 1", got)
	}
}

func TestEnsureStyleElementWithoutHead(t *testing.T) {
	inj, doc := newTestInjector(t, "<p>x</p>", true)
	doc.RemoveChild(doc.DocumentElement(), doc.Head())
	if doc.Head() != nil {
		t.Fatal("head not removed")
	}

	el := inj.EnsureStyleElement()
	if el.Parent != doc.DocumentElement() {
		t.Errorf("style element parent = %v, want document element", el.Parent)
	}
}

func TestEnsureStyleElementEmptyDocument(t *testing.T) {
	doc := NewDocument(&html.Node{Type: html.DocumentNode}, NewLoop(), ReadyInteractive)
	store := &RuleStore{}
	store.setAllowed(true)
	el := NewCSSInjector(doc, store, nil).EnsureStyleElement()
	if el.Parent != doc.Node() {
		t.Error("style element not appended to document node")
	}
}

func TestSetContentGated(t *testing.T) {
	inj, doc := newTestInjector(t, "<p>x</p>", false)
	inj.SetContent("p { color: red }")
	if doc.GetElementByID(StyleElementID) != nil {
		t.Error("style element injected into a page that is not admitted")
	}
}
