package restyle

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseDocument reads HTML from r and returns a Document on loop. The
// document is returned in ReadyLoading state so that content-loaded
// callbacks can be registered before the caller marks it interactive.
func ParseDocument(r io.Reader, loop *Loop) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return NewDocument(doc.Nodes[0], loop, ReadyLoading), nil
}

// ParseDocumentString is ParseDocument for HTML text.
func ParseDocumentString(htmltext string, loop *Loop) (*Document, error) {
	return ParseDocument(strings.NewReader(htmltext), loop)
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String returns the rendered document.
func (d *Document) String() string {
	var b bytes.Buffer
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}
