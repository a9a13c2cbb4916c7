package restyle

import (
	"context"
	"log/slog"

	"golang.org/x/net/html"
)

// MutationWatcher applies the current rules to elements inserted into the
// document.
type MutationWatcher struct {
	doc       *Document
	store     *RuleStore
	applier   *StyleApplier
	logger    *slog.Logger
	observer  *Observer
	maxFrames int
	frames    int
}

// NewMutationWatcher returns a watcher for doc. maxFrames bounds the number of
// frames ObserveBody waits for a body; zero waits forever.
func NewMutationWatcher(doc *Document, store *RuleStore, applier *StyleApplier, maxFrames int, logger *slog.Logger) *MutationWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MutationWatcher{
		doc:       doc,
		store:     store,
		applier:   applier,
		logger:    logger,
		maxFrames: maxFrames,
	}
}

// Observe starts watching the subtree of root. Calling it again moves the
// watch to the new root.
func (w *MutationWatcher) Observe(root *html.Node) {
	w.Stop()
	w.observer = w.doc.Observe(root, w.handle)
}

// Observing reports whether the watcher is attached.
func (w *MutationWatcher) Observing() bool {
	return w.observer != nil
}

// Stop detaches the watcher.
func (w *MutationWatcher) Stop() {
	if w.observer != nil {
		w.observer.Disconnect()
		w.observer = nil
	}
}

// ObserveBody watches <body>. If the document has no body yet, it retries on
// every frame until one appears, ctx is done or the frame bound is reached.
func (w *MutationWatcher) ObserveBody(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if body := w.doc.Body(); body != nil {
		w.Observe(body)
		w.logger.Debug("observing body", slog.Int("frames_waited", w.frames))
		return
	}
	if w.maxFrames > 0 && w.frames >= w.maxFrames {
		w.logger.Warn("no body to observe, giving up", slog.Int("frames", w.frames))
		return
	}
	w.frames++
	w.doc.Loop().RequestFrame(func() {
		w.ObserveBody(ctx)
	})
}

func (w *MutationWatcher) handle(records []MutationRecord) {
	if !w.store.Allowed() {
		return
	}
	rules := w.store.Rules()
	added := 0
	for _, rec := range records {
		for _, n := range rec.AddedNodes {
			if KindOf(n) != KindElement {
				continue
			}
			added += w.applier.Apply(n, rules)
		}
	}
	if added > 0 {
		w.logger.Debug("applied rules to inserted nodes",
			slog.Int("records", len(records)),
			slog.Int("classes_added", added),
		)
	}
}
