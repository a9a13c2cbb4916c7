// Package store provides configuration stores for restyle pages: an
// in-process store, a YAML/JSONC file watched with fsnotify and a Redis
// backend with pub/sub change notifications.
//
// All stores are namespaced. Subscribers only see writes to their own
// namespace, in write order.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/internal/log"
)

// DefaultNamespace is the namespace used when none is given.
const DefaultNamespace = "local"

// ErrUnknownBackend is returned by Open for unsupported URL schemes.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is a readable, writable and observable configuration store.
type Store interface {
	restyle.ConfigStore
	// Set applies patch and notifies subscribers of the keys that changed.
	Set(ctx context.Context, patch restyle.Patch) error
	// Close releases the store's resources.
	Close() error
}

// Open returns the store described by rawURL:
//
//	memory:                  in-process store
//	file:///path/config.yaml YAML or JSONC file (a plain path works too)
//	redis://host:6379/0      Redis
func Open(ctx context.Context, rawURL, namespace string) (Store, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemory(namespace), nil
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		return NewFile(path, namespace)
	case "redis", "rediss":
		return NewRedis(ctx, rawURL, namespace)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, u.Scheme)
}

const (
	subscriberBuffer = 16
	// slowSubscriberTimeout is how long publish waits on a subscriber whose
	// buffer is full before dropping it.
	slowSubscriberTimeout = 2 * time.Second
)

// hub fans change sets out to subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[chan restyle.ChangeSet]context.Context
	// timeout overrides slowSubscriberTimeout when set.
	timeout time.Duration
}

func (h *hub) subscribe(ctx context.Context) <-chan restyle.ChangeSet {
	ch := make(chan restyle.ChangeSet, subscriberBuffer)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan restyle.ChangeSet]context.Context)
	}
	h.subs[ch] = ctx
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.drop(ch)
	}()
	return ch
}

// drop closes ch unless it was closed already.
func (h *hub) drop(ch chan restyle.ChangeSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// publish delivers cs to every subscriber. It holds the lock while sending
// so concurrent writers cannot reorder notifications. A subscriber that
// keeps its buffer full for the timeout is dropped: its channel is
// closed, as if its context had ended, and writers no longer wait for it.
func (h *hub) publish(cs restyle.ChangeSet) {
	if cs.Empty() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, ctx := range h.subs {
		select {
		case ch <- cs:
			continue
		default:
		}

		timer := time.NewTimer(h.waitLimit())
		select {
		case ch <- cs:
		case <-ctx.Done():
		case <-timer.C:
			log.WithContext(ctx).Warn("drop subscriber that stopped reading change notifications",
				slog.Int("buffered", len(ch)),
			)
			delete(h.subs, ch)
			close(ch)
		}
		timer.Stop()
	}
}

func (h *hub) waitLimit() time.Duration {
	if h.timeout > 0 {
		return h.timeout
	}
	return slowSubscriberTimeout
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Memory is an in-process store.
type Memory struct {
	mu        sync.Mutex
	namespace string
	cfg       restyle.Config
	hub       hub
}

// NewMemory returns an empty in-process store.
func NewMemory(namespace string) *Memory {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Memory{namespace: namespace}
}

// Namespace returns the namespace of the store.
func (m *Memory) Namespace() string {
	return m.namespace
}

// Get implements restyle.ConfigStore.
func (m *Memory) Get(ctx context.Context) (restyle.Config, error) {
	if err := ctx.Err(); err != nil {
		return restyle.Config{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, nil
}

// Subscribe implements restyle.ConfigStore.
func (m *Memory) Subscribe(ctx context.Context) (<-chan restyle.ChangeSet, error) {
	return m.hub.subscribe(ctx), nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, patch restyle.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var cs restyle.ChangeSet
	m.cfg, cs = patch.Apply(m.cfg)
	m.hub.publish(cs)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.hub.close()
	return nil
}
