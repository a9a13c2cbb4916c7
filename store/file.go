package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/muhammadmuzzammil1998/jsonc"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/internal/log"
)

const fileSettleDelay = 20 * time.Millisecond

// ErrNoPath is returned by NewFile for an empty path.
var ErrNoPath = errors.New("no file path")

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	// FormatJSONC is JSON with comments. Comments are lost when the store
	// writes the file.
	FormatJSONC Format = "jsonc"
)

// FormatOf returns the format implied by the extension of path. Anything that
// is not .json or .jsonc is YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSONC
	}

	return FormatYAML
}

// File is a store backed by a configuration file. The file maps namespaces
// to configurations:
//
//	local:
//	  allowedDomains: [example.com]
//	  rules:
//	    - selector: p
//	      addClass: big
//	  customCSS: ".big { font-size: 2em }"
//
// A missing file reads as an empty configuration. Writes from other
// processes are picked up with fsnotify once someone subscribes.
type File struct {
	path      string
	namespace string
	format    Format
	validator *Validator

	mu      sync.Mutex
	hub     hub
	watcher *fsnotify.Watcher
	last    restyle.Config
}

// NewFile returns a store for the file at path.
func NewFile(path, namespace string) (*File, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	v, err := defaultValidator()
	if err != nil {
		return nil, err
	}

	return &File{
		path:      abs,
		namespace: namespace,
		format:    FormatOf(abs),
		validator: v,
	}, nil
}

// Path returns the absolute path of the file.
func (f *File) Path() string {
	return f.path
}

// Namespace returns the namespace of the store.
func (f *File) Namespace() string {
	return f.namespace
}

// Namespaces returns the namespaces present in the file, sorted.
func (f *File) Namespaces() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		return nil, err
	}

	return slices.Sorted(maps.Keys(all)), nil
}

// Get implements restyle.ConfigStore.
func (f *File) Get(ctx context.Context) (restyle.Config, error) {
	if err := ctx.Err(); err != nil {
		return restyle.Config{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		return restyle.Config{}, err
	}

	return all[f.namespace], nil
}

// Set implements Store. The file is replaced atomically.
func (f *File) Set(ctx context.Context, patch restyle.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		return err
	}
	cfg, cs := patch.Apply(all[f.namespace])
	if cs.Empty() {
		return nil
	}
	all[f.namespace] = cfg

	err = f.writeAll(all)
	if err != nil {
		return err
	}

	log.WithContext(ctx).Debug("wrote configuration",
		slog.String("path", f.path),
		slog.String("namespace", f.namespace),
		slog.Any("keys", cs.Keys()),
	)

	f.last = cfg
	f.hub.publish(cs)

	return nil
}

// Subscribe implements restyle.ConfigStore. The first call starts watching
// the file's directory.
func (f *File) Subscribe(ctx context.Context) (<-chan restyle.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		err := f.watch()
		if err != nil {
			return nil, err
		}
	}

	return f.hub.subscribe(ctx), nil
}

// Close stops watching the file and closes all subscriptions.
func (f *File) Close() error {
	f.mu.Lock()
	w := f.watcher
	f.watcher = nil
	f.mu.Unlock()

	f.hub.close()
	if w != nil {
		err := w.Close()
		if err != nil {
			return fmt.Errorf("close watcher: %w", err)
		}
	}

	return nil
}

func (f *File) watch() error {
	all, err := f.readAll()
	if err != nil {
		return err
	}
	f.last = all[f.namespace]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("create directories: %w", err)
	}

	// Watch the directory so atomic replacements are seen.
	err = watcher.Add(dir)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("add path to watcher: %w", err)
	}

	f.watcher = watcher
	go f.runOnEvent(watcher)

	return nil
}

func (f *File) runOnEvent(w *fsnotify.Watcher) {
	logger := log.WithContext(context.Background()).With(slog.String("path", f.path))

	// Writers may truncate before writing, so reload only once the file was
	// quiet for a moment.
	var settle <-chan time.Time
	for {
		select {
		case <-settle:
			settle = nil
			f.reload(logger)

		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != f.path {
				continue
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) {
				continue
			}

			settle = time.After(fileSettleDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("watch configuration file", slog.Any("error", err))
		}
	}
}

func (f *File) reload(logger *slog.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		logger.Warn("reload configuration, keeping previous", slog.Any("error", err))
		return
	}
	cfg := all[f.namespace]
	cs := restyle.Diff(f.last, cfg)
	f.last = cfg
	if cs.Empty() {
		return
	}

	logger.Debug("configuration file changed", slog.Any("keys", cs.Keys()))
	f.hub.publish(cs)
}

func (f *File) readAll() (map[string]restyle.Config, error) {
	all := map[string]restyle.Config{}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return all, nil
	}

	switch f.format {
	case FormatJSONC:
		data = jsonc.ToJSON(data)
		err = f.validator.ValidateJSON(data)
	default:
		err = f.validator.ValidateYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}

	// JSON is a subset of YAML, so one decoder serves both formats.
	err = yaml.Unmarshal(data, &all)
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", f.path, err)
	}

	return all, nil
}

func (f *File) writeAll(all map[string]restyle.Config) error {
	var (
		b   []byte
		err error
	)
	switch f.format {
	case FormatJSONC:
		b, err = json.MarshalIndent(all, "", "  ")
		b = append(b, '\n')
	default:
		b, err = yaml.Marshal(all)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.format, err)
	}

	dir := filepath.Dir(f.path)
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(b)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	err = os.Rename(tmp.Name(), f.path)
	if err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}
