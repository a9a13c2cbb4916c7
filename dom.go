package restyle

import (
	"slices"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadyState is the loading state of a Document.
type ReadyState int

const (
	// ReadyLoading means the document is still being parsed.
	ReadyLoading ReadyState = iota
	// ReadyInteractive means parsing finished; content-loaded callbacks ran.
	ReadyInteractive
	// ReadyComplete means all subresources finished loading.
	ReadyComplete
)

func (s ReadyState) String() string {
	switch s {
	case ReadyLoading:
		return "loading"
	case ReadyInteractive:
		return "interactive"
	case ReadyComplete:
		return "complete"
	}
	return "unknown"
}

// MutationRecord describes one change to the children of Target.
type MutationRecord struct {
	Target       *html.Node
	AddedNodes   []*html.Node
	RemovedNodes []*html.Node
}

// MutationCallback receives one batch of records.
type MutationCallback func([]MutationRecord)

// Observer watches a subtree of a Document for child list changes.
type Observer struct {
	doc       *Document
	target    *html.Node
	callback  MutationCallback
	pending   []MutationRecord
	scheduled bool
}

// Disconnect stops the observer. Records not yet delivered are dropped.
func (o *Observer) Disconnect() {
	o.pending = nil
	o.doc.observers = slices.DeleteFunc(o.doc.observers, func(other *Observer) bool {
		return other == o
	})
}

// TakeRecords returns and clears the records that were queued but not delivered.
func (o *Observer) TakeRecords() []MutationRecord {
	records := o.pending
	o.pending = nil
	return records
}

// Document is an HTML document living on a Loop. Tree changes made through
// its methods are reported to observers in batches, one loop task per batch.
type Document struct {
	root      *html.Node
	loop      *Loop
	state     ReadyState
	onLoaded  []func()
	observers []*Observer
}

// NewDocument wraps the document node root. The document starts out loading
// if state says so; call SetReadyState once parsing is done.
func NewDocument(root *html.Node, loop *Loop, state ReadyState) *Document {
	return &Document{root: root, loop: loop, state: state}
}

// Node returns the document node.
func (d *Document) Node() *html.Node {
	return d.root
}

// Loop returns the loop the document lives on.
func (d *Document) Loop() *Loop {
	return d.loop
}

// DocumentElement returns the root element (normally <html>).
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Head returns the <head> element or nil.
func (d *Document) Head() *html.Node {
	return d.rootChild(atom.Head)
}

// Body returns the <body> element or nil.
func (d *Document) Body() *html.Node {
	return d.rootChild(atom.Body)
}

func (d *Document) rootChild(a atom.Atom) *html.Node {
	de := d.DocumentElement()
	if de == nil {
		return nil
	}
	for c := de.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// GetElementByID returns the first element with the given id, in document
// order.
func (d *Document) GetElementByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	return cascadia.Query(d.root, idMatcher(id))
}

type idMatcher string

func (m idMatcher) Match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			return a.Val == string(m)
		}
	}
	return false
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

// CreateTextNode returns a detached text node.
func (d *Document) CreateTextNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// AppendChild appends child to parent. A child that already has a parent is
// moved.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref, or at the end if ref is
// nil.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	if child.Parent != nil {
		d.RemoveChild(child.Parent, child)
	}
	parent.InsertBefore(child, ref)
	d.record(MutationRecord{Target: parent, AddedNodes: []*html.Node{child}})
}

// RemoveChild removes child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	d.record(MutationRecord{Target: parent, RemovedNodes: []*html.Node{child}})
}

// SetTextContent replaces all children of n with a single text node holding
// text. An empty text leaves n without children.
func (d *Document) SetTextContent(n *html.Node, text string) {
	var removed []*html.Node
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
		removed = append(removed, c)
	}
	rec := MutationRecord{Target: n, RemovedNodes: removed}
	if text != "" {
		t := d.CreateTextNode(text)
		n.AppendChild(t)
		rec.AddedNodes = []*html.Node{t}
	}
	if len(rec.AddedNodes) > 0 || len(rec.RemovedNodes) > 0 {
		d.record(rec)
	}
}

// ReadyState returns the loading state.
func (d *Document) ReadyState() ReadyState {
	return d.state
}

// SetReadyState advances the loading state. Leaving ReadyLoading posts the
// content-loaded callbacks to the loop in registration order.
func (d *Document) SetReadyState(state ReadyState) {
	if state <= d.state {
		return
	}
	wasLoading := d.state == ReadyLoading
	d.state = state
	if !wasLoading {
		return
	}
	callbacks := d.onLoaded
	d.onLoaded = nil
	for _, fn := range callbacks {
		d.loop.Post(fn)
	}
}

// OnContentLoaded registers fn to run once the document leaves ReadyLoading.
// If it already has, fn is posted right away.
func (d *Document) OnContentLoaded(fn func()) {
	if d.state != ReadyLoading {
		d.loop.Post(fn)
		return
	}
	d.onLoaded = append(d.onLoaded, fn)
}

// Observe reports child list changes anywhere in the subtree of target to
// callback.
func (d *Document) Observe(target *html.Node, callback MutationCallback) *Observer {
	o := &Observer{doc: d, target: target, callback: callback}
	d.observers = append(d.observers, o)
	return o
}

func (d *Document) record(rec MutationRecord) {
	for _, o := range d.observers {
		if !isInclusiveAncestor(o.target, rec.Target) {
			continue
		}
		o.pending = append(o.pending, rec)
		if o.scheduled {
			continue
		}
		o.scheduled = true
		d.loop.Post(o.deliver)
	}
}

func (o *Observer) deliver() {
	o.scheduled = false
	records := o.TakeRecords()
	if len(records) == 0 {
		return
	}
	o.callback(records)
}

func isInclusiveAncestor(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}
