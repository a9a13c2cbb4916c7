package restyle

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestLoopOrder(t *testing.T) {
	loop := NewLoop()
	var order []string
	loop.Post(func() {
		order = append(order, "a")
		loop.Post(func() { order = append(order, "c") })
	})
	loop.Post(func() { order = append(order, "b") })

	if n := loop.RunPending(); n != 3 {
		t.Errorf("RunPending() = %d, want 3", n)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestLoopFrame(t *testing.T) {
	loop := NewLoop()
	var order []string
	loop.RequestFrame(func() {
		order = append(order, "frame1")
		loop.RequestFrame(func() { order = append(order, "frame2") })
		loop.Post(func() { order = append(order, "task") })
	})

	if tasks, frames := loop.Pending(); tasks != 0 || frames != 1 {
		t.Errorf("Pending() = %d, %d, want 0, 1", tasks, frames)
	}
	if n := loop.Frame(); n != 2 {
		t.Errorf("Frame() = %d, want 2", n)
	}
	if want := []string{"frame1", "task"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	loop.Frame()
	if want := []string{"frame1", "task", "frame2"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if n := loop.Frame(); n != 0 {
		t.Errorf("idle Frame() = %d, want 0", n)
	}
}

func TestLoopRun(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	turns := 0
	loop := NewLoop(
		WithFrameInterval(time.Millisecond),
		WithAfterTurn(func() { turns++ }),
	)
	loop.RequestFrame(func() {
		loop.Post(cancel)
	})

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
	if turns == 0 {
		t.Error("after-turn function never ran")
	}
}
