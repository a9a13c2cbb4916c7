package restyle

import (
	"log/slog"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"
)

// StyleElementID is the id of the injected <style> element.
const StyleElementID = "restyle-custom-css"

// CSSInjector owns the single injected <style> element of a document.
type CSSInjector struct {
	doc    *Document
	store  *RuleStore
	logger *slog.Logger
}

// NewCSSInjector returns an injector for doc gated by store.
func NewCSSInjector(doc *Document, store *RuleStore, logger *slog.Logger) *CSSInjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSSInjector{doc: doc, store: store, logger: logger}
}

// EnsureStyleElement returns the injected <style> element, creating it on
// first use. A new element is appended to <head>; documents without a head
// get it appended to the document element, or to the document node if there
// is no element at all.
func (i *CSSInjector) EnsureStyleElement() *html.Node {
	if el := i.doc.GetElementByID(StyleElementID); el != nil {
		return el
	}
	el := i.doc.CreateElement("style")
	el.Attr = append(el.Attr, html.Attribute{Key: "id", Val: StyleElementID})

	parent := i.doc.Head()
	if parent == nil {
		parent = i.doc.DocumentElement()
		i.logger.Debug("document has no head, appending style to document element")
	}
	if parent == nil {
		parent = i.doc.Node()
	}
	i.doc.AppendChild(parent, el)
	return el
}

// SetContent replaces the whole text of the injected stylesheet with css. It
// does nothing while the page is not admitted.
func (i *CSSInjector) SetContent(css string) {
	if !i.store.Allowed() {
		return
	}
	el := i.EnsureStyleElement()
	i.doc.SetTextContent(el, css)

	if css != "" {
		sheet := ParseStylesheet(css)
		i.logger.Debug("injected custom css",
			slog.String("size", humanize.Bytes(uint64(len(css)))),
			slog.Int("rules", sheet.RuleCount()),
			slog.Any("at_rules", sheet.AtRules()),
		)
	}
}
