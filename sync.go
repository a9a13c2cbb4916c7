package restyle

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/boxesandglue/restyle/internal/log"
)

// Host is the environment a Controller runs in.
type Host interface {
	// Hostname is the hostname of the page, checked against the allow-list.
	Hostname() string
	// Document is the document rules are applied to.
	Document() *Document
	// Reload throws the page state away and loads the page again.
	Reload()
}

// State is the state of a Controller.
type State int

const (
	// StateUninitialized is the state before the configuration was read and
	// after a reload was requested.
	StateUninitialized State = iota
	// StateBlocked means the host is not on the allow-list.
	StateBlocked
	// StateActive means rules and custom CSS are applied.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBlocked:
		return "blocked"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	maxFrameRetries int
	tracer          trace.Tracer
}

// WithMaxFrameRetries bounds how many frames the controller waits for a
// <body> to observe. Zero, the default, waits forever.
func WithMaxFrameRetries(n int) Option {
	return func(o *options) {
		o.maxFrameRetries = n
	}
}

// WithTracer sets the tracer for controller spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// Controller keeps a document in sync with the configuration store.
type Controller struct {
	host     Host
	store    ConfigStore
	doc      *Document
	loop     *Loop
	rules    *RuleStore
	applier  *StyleApplier
	injector *CSSInjector
	watcher  *MutationWatcher
	opts     options

	state     State
	allowList []string
	reloading bool
}

// NewController returns a controller for host reading from store.
func NewController(host Host, store ConfigStore, opts ...Option) *Controller {
	o := options{tracer: otel.Tracer("github.com/boxesandglue/restyle")}
	for _, opt := range opts {
		opt(&o)
	}
	doc := host.Document()
	return &Controller{
		host:  host,
		store: store,
		doc:   doc,
		loop:  doc.Loop(),
		rules: &RuleStore{},
		opts:  o,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// RuleStore returns the rules, CSS and gate decision shared with the
// applier, injector and watcher.
func (c *Controller) RuleStore() *RuleStore {
	return c.rules
}

// AllowList returns the allow-list last seen by the controller.
func (c *Controller) AllowList() []string {
	return c.allowList
}

// Watcher returns the mutation watcher, or nil before the page was admitted.
func (c *Controller) Watcher() *MutationWatcher {
	return c.watcher
}

// Start subscribes to configuration changes and schedules the initial
// configuration read for when the document is ready. Change notifications
// and the read result are processed as loop tasks in the order they arrive.
// Work stops when ctx is done.
func (c *Controller) Start(ctx context.Context) {
	logger := log.WithContext(ctx)
	c.applier = NewStyleApplier(c.rules, logger)
	c.injector = NewCSSInjector(c.doc, c.rules, logger)

	changes, err := c.store.Subscribe(ctx)
	if err != nil {
		logger.Error("subscribe to configuration changes, live updates disabled",
			slog.Any("error", err),
		)
	} else {
		go c.forward(ctx, changes)
	}

	c.doc.OnContentLoaded(func() {
		c.load(ctx)
	})
}

func (c *Controller) forward(ctx context.Context, changes <-chan ChangeSet) {
	for {
		select {
		case <-ctx.Done():
			return
		case cs, ok := <-changes:
			if !ok {
				return
			}
			c.loop.Post(func() {
				c.handleChange(ctx, cs)
			})
		}
	}
}

func (c *Controller) inert(ctx context.Context) bool {
	return c.reloading || ctx.Err() != nil
}

func (c *Controller) load(ctx context.Context) {
	if c.inert(ctx) {
		return
	}
	go func() {
		cfg, err := c.store.Get(ctx)
		c.loop.Post(func() {
			c.init(ctx, cfg, err)
		})
	}()
}

func (c *Controller) init(ctx context.Context, cfg Config, err error) {
	if c.inert(ctx) {
		return
	}
	spanCtx, span := c.opts.tracer.Start(ctx, "init",
		trace.WithAttributes(attribute.String("hostname", c.host.Hostname())),
	)
	defer span.End()
	logger := log.WithContext(spanCtx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read configuration")
		logger.Error("read configuration, staying inactive", slog.Any("error", err))
		c.state = StateBlocked
		return
	}

	c.allowList = cfg.AllowedDomains
	entry, allowed := MatchingEntry(c.host.Hostname(), cfg.AllowedDomains)
	c.rules.setAllowed(allowed)
	span.SetAttributes(attribute.Bool("allowed", allowed))
	if !allowed {
		c.state = StateBlocked
		logger.Debug("host not on allow-list", slog.String("hostname", c.host.Hostname()))
		return
	}

	c.state = StateActive
	c.rules.SetRules(cfg.Rules)
	c.rules.SetCustomCSS(cfg.CustomCSS)
	c.injector.SetContent(c.rules.CustomCSS())
	added := c.applier.Apply(c.doc.Node(), c.rules.Rules())

	c.watcher = NewMutationWatcher(c.doc, c.rules, c.applier, c.opts.maxFrameRetries, logger)
	c.watcher.ObserveBody(ctx)

	logger.Info("activated",
		slog.String("hostname", c.host.Hostname()),
		slog.String("matched", entry),
		slog.Int("rules", len(cfg.Rules)),
		slog.Int("classes_added", added),
	)
}

func (c *Controller) handleChange(ctx context.Context, cs ChangeSet) {
	if c.inert(ctx) {
		return
	}
	spanCtx, span := c.opts.tracer.Start(ctx, "change",
		trace.WithAttributes(attribute.StringSlice("keys", cs.Keys())),
	)
	defer span.End()
	logger := log.WithContext(spanCtx)

	if cs.AllowedDomains != nil {
		allowed := Determine(c.host.Hostname(), cs.AllowedDomains.NewValue)
		if allowed != c.rules.Allowed() {
			logger.Info("allow-list decision changed, reloading",
				slog.String("hostname", c.host.Hostname()),
				slog.Bool("allowed", allowed),
			)
			span.AddEvent("reload")
			c.reloading = true
			c.state = StateUninitialized
			c.rules.setAllowed(false)
			c.host.Reload()
			return
		}
		c.allowList = cs.AllowedDomains.NewValue
	}

	if c.state != StateActive {
		return
	}

	if cs.Rules != nil {
		c.rules.SetRules(cs.Rules.NewValue)
		added := c.applier.Apply(c.doc.Node(), c.rules.Rules())
		logger.Debug("rules replaced",
			slog.Int("rules", len(cs.Rules.NewValue)),
			slog.Int("classes_added", added),
		)
	}

	if cs.CustomCSS != nil {
		c.rules.SetCustomCSS(cs.CustomCSS.NewValue)
		c.injector.SetContent(c.rules.CustomCSS())
	}
}
