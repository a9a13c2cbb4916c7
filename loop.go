package restyle

import (
	"context"
	"sync"
	"time"
)

// DefaultFrameInterval is the frame period used by Loop.Run.
const DefaultFrameInterval = 16 * time.Millisecond

// Loop is a cooperative single-threaded scheduler. Tasks run one at a time in
// the order they were posted; frame callbacks run at the next frame. Post and
// RequestFrame may be called from any goroutine, but only one goroutine may
// drive the loop (Run, RunPending or Frame) at a time.
type Loop struct {
	mu            sync.Mutex
	tasks         []func()
	frames        []func()
	wake          chan struct{}
	frameInterval time.Duration
	afterTurn     func()
}

// LoopOpt configures a Loop.
type LoopOpt func(*Loop)

// WithFrameInterval sets the frame period used by Run.
func WithFrameInterval(d time.Duration) LoopOpt {
	return func(l *Loop) {
		if d > 0 {
			l.frameInterval = d
		}
	}
}

// WithAfterTurn sets a function that Run calls after every turn that ran at
// least one task or frame callback.
func WithAfterTurn(fn func()) LoopOpt {
	return func(l *Loop) {
		l.afterTurn = fn
	}
}

// NewLoop returns an idle loop.
func NewLoop(opts ...LoopOpt) *Loop {
	l := &Loop{
		wake:          make(chan struct{}, 1),
		frameInterval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn as a task.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RequestFrame queues fn for the next frame.
func (l *Loop) RequestFrame(fn func()) {
	l.mu.Lock()
	l.frames = append(l.frames, fn)
	l.mu.Unlock()
}

// RunPending runs queued tasks, including tasks queued while running, until
// the queue is empty. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

// Frame runs the frame callbacks requested before the call and then the
// pending tasks. Callbacks requested during the frame wait for the next one.
// It returns the number of callbacks and tasks run.
func (l *Loop) Frame() int {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, fn := range frames {
		fn()
	}
	return len(frames) + l.RunPending()
}

// Pending returns the number of queued tasks and frame callbacks.
func (l *Loop) Pending() (tasks, frames int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.frames)
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.frameInterval)
	defer ticker.Stop()

	for {
		var n int
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			n = l.RunPending()
		case <-ticker.C:
			n = l.Frame()
		}
		if n > 0 && l.afterTurn != nil {
			l.afterTurn()
		}
	}
}
