package restyle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestPageLoad(t *testing.T) {
	st := &fakeStore{}
	page := NewPage("example.com", StringSource("<p>x</p>"), st, NewLoop())
	if page.Document() != nil || page.Generation() != 0 {
		t.Fatal("page loaded before Load")
	}
	loads := 0
	page.OnLoad(func(*Page) { loads++ })

	if err := page.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer page.Close()
	if page.Generation() != 1 || loads != 1 {
		t.Errorf("Generation() = %d, loads = %d, want 1, 1", page.Generation(), loads)
	}
	if got := page.Document().ReadyState(); got != ReadyInteractive {
		t.Errorf("ReadyState() = %s, want interactive", got)
	}
	if page.Hostname() != "example.com" {
		t.Errorf("Hostname() = %q", page.Hostname())
	}
}

func TestPageReload(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "page.html")
	if err := os.WriteFile(filename, []byte(`<p id="v">1</p>`), 0o600); err != nil {
		t.Fatal(err)
	}
	page := NewPage("example.com", FileSource(filename), &fakeStore{}, NewLoop())
	if err := page.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer page.Close()
	first := page.Document()

	if err := os.WriteFile(filename, []byte(`<p id="v">2</p>`), 0o600); err != nil {
		t.Fatal(err)
	}
	page.Reload()
	if page.Generation() != 1 {
		t.Fatal("Reload() ran synchronously")
	}
	page.loop.RunPending()

	if page.Generation() != 2 || page.Document() == first {
		t.Fatalf("Generation() = %d, page not reloaded", page.Generation())
	}
	if got := page.Document().GetElementByID("v").FirstChild.Data; got != "2" {
		t.Errorf("reloaded text = %q, want 2", got)
	}
}

func TestPageReloadAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	page := NewPage("example.com", StringSource(""), &fakeStore{}, NewLoop())
	if err := page.Load(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	page.Reload()
	page.loop.RunPending()
	if page.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", page.Generation())
	}
}

func TestPageSourceError(t *testing.T) {
	errMissing := errors.New("missing")
	page := NewPage("example.com", func() (io.ReadCloser, error) { return nil, errMissing }, &fakeStore{}, NewLoop())
	if err := page.Load(t.Context()); !errors.Is(err, errMissing) {
		t.Errorf("Load() = %v, want %v", err, errMissing)
	}
}
