package restyle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/boxesandglue/restyle/internal/log"
)

// Source opens the HTML of a page. It is called again on every reload.
type Source func() (io.ReadCloser, error)

// FileSource reads the page from a file.
func FileSource(filename string) Source {
	return func() (io.ReadCloser, error) {
		return os.Open(filename)
	}
}

// StringSource serves the page from htmltext.
func StringSource(htmltext string) Source {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(htmltext)), nil
	}
}

// Page is a document with a hostname, loaded from a Source and kept in sync
// with a ConfigStore by a Controller. A reload discards the document and the
// controller and builds both again from scratch.
type Page struct {
	hostname string
	source   Source
	store    ConfigStore
	loop     *Loop
	opts     []Option

	parent     context.Context
	cancel     context.CancelFunc
	doc        *Document
	controller *Controller
	generation int
	onLoad     []func(*Page)
}

// NewPage returns a page that is not loaded yet.
func NewPage(hostname string, source Source, store ConfigStore, loop *Loop, opts ...Option) *Page {
	return &Page{
		hostname: hostname,
		source:   source,
		store:    store,
		loop:     loop,
		opts:     opts,
	}
}

// Hostname implements Host.
func (p *Page) Hostname() string {
	return p.hostname
}

// Document implements Host. It returns nil before the first Load.
func (p *Page) Document() *Document {
	return p.doc
}

// Controller returns the controller of the current generation.
func (p *Page) Controller() *Controller {
	return p.controller
}

// Generation counts the loads of the page, starting at 1.
func (p *Page) Generation() int {
	return p.generation
}

// OnLoad registers fn to run after every successful Load.
func (p *Page) OnLoad(fn func(*Page)) {
	p.onLoad = append(p.onLoad, fn)
}

// Load parses the page and starts a controller for it. Any previous
// generation is torn down first. Load must run on the loop's goroutine, or
// before the loop is driven.
func (p *Page) Load(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.parent = ctx

	r, err := p.source()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer r.Close()

	doc, err := ParseDocument(r, p.loop)
	if err != nil {
		return err
	}

	genCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.doc = doc
	p.generation++
	p.controller = NewController(p, p.store, p.opts...)
	p.controller.Start(genCtx)
	doc.SetReadyState(ReadyInteractive)

	log.WithContext(ctx).Debug("page loaded",
		slog.String("hostname", p.hostname),
		slog.Int("generation", p.generation),
	)
	for _, fn := range p.onLoad {
		fn(p)
	}
	return nil
}

// Reload implements Host. The reload runs as a separate loop task.
func (p *Page) Reload() {
	p.loop.Post(func() {
		ctx := p.parent
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.Load(ctx); err != nil {
			log.WithContext(ctx).Error("reload page", slog.Any("error", err))
		}
	})
}

// Close tears down the current generation.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}
