package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/internal/log"
	"github.com/boxesandglue/restyle/store"
)

// ErrNoHost is returned when a page command runs without --host.
var ErrNoHost = errors.New("no host given, use --host")

type PageArgs struct {
	*RootArgs

	Host            string
	Output          string
	MaxFrameRetries int
	Timeout         time.Duration
}

func NewPageArgs(rootArgs *RootArgs) *PageArgs {
	return &PageArgs{RootArgs: rootArgs}
}

func (pa *PageArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pa.Host, "host", "", "Hostname the page is served from")
	cmd.Flags().StringVarP(&pa.Output, "output", "o", "", "Write the page to this file instead of stdout")
	cmd.Flags().IntVar(&pa.MaxFrameRetries, "max-frame-retries", 0,
		"Frames to wait for a <body> before giving up on watching it, 0 waits forever")
	cmd.Flags().DurationVar(&pa.Timeout, "timeout", 10*time.Second, "Time allowed for reading the configuration")

	err := cmd.MarkFlagFilename("output", "html", "htm")
	if err != nil {
		panic(fmt.Errorf("mark output flag: %w", err))
	}
}

func (pa *PageArgs) validate() error {
	if pa.Host == "" {
		return ErrNoHost
	}

	return nil
}

func (pa *PageArgs) newPage(path string, st store.Store, loop *restyle.Loop) *restyle.Page {
	return restyle.NewPage(pa.Host, restyle.FileSource(path), st, loop,
		restyle.WithMaxFrameRetries(pa.MaxFrameRetries),
	)
}

// settle loads the page and drives the loop until the controller has read
// the configuration and no work is left.
func (pa *PageArgs) settle(ctx context.Context, path string, st store.Store) (*restyle.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, pa.Timeout)
	defer cancel()

	runCtx, done := context.WithCancel(ctx)
	defer done()

	var (
		page *restyle.Page
		loop *restyle.Loop
	)
	loop = restyle.NewLoop(restyle.WithAfterTurn(func() {
		tasks, _ := loop.Pending()
		if page.Controller().State() != restyle.StateUninitialized && tasks == 0 {
			done()
		}
	}))
	page = pa.newPage(path, st, loop)

	err := page.Load(ctx)
	if err != nil {
		return nil, err
	}

	_ = loop.Run(runCtx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	page.Document().SetReadyState(restyle.ReadyComplete)
	loop.RunPending()

	return page, nil
}

func (pa *PageArgs) output(cmd *cobra.Command) (io.WriteCloser, error) {
	if pa.Output == "" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}

	f, err := os.Create(pa.Output)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func NewApplyCmd(pa *PageArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [flags] PAGE",
		Short: "Apply the configuration to a page once and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pa.runOnce(cmd, args[0], func(w io.Writer, page *restyle.Page) error {
				return page.Document().Render(w)
			})
		},
	}
	pa.AddFlags(cmd)

	return cmd
}

func NewTreeCmd(pa *PageArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [flags] PAGE",
		Short: "Apply the configuration to a page and print its element tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pa.runOnce(cmd, args[0], func(w io.Writer, page *restyle.Page) error {
				_, err := io.WriteString(w, restyle.DumpTree(page.Document().Node()))
				return err
			})
		},
	}
	pa.AddFlags(cmd)

	return cmd
}

func (pa *PageArgs) runOnce(cmd *cobra.Command, path string, write func(io.Writer, *restyle.Page) error) error {
	err := pa.validate()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := pa.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	page, err := pa.settle(ctx, path, st)
	if err != nil {
		return err
	}
	defer page.Close()

	log.WithContext(ctx).Debug("page settled",
		slog.String("host", pa.Host),
		slog.String("state", page.Controller().State().String()),
	)

	w, err := pa.output(cmd)
	if err != nil {
		return err
	}

	err = write(w, page)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("write page: %w", err)
	}

	return w.Close()
}

func NewWatchCmd(pa *PageArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags] PAGE",
		Short: "Keep a page in sync with the configuration and the page file",
		Long: `Load the page and apply the configuration, then keep running: changes to
the configuration are applied live, and a change of the page file reloads
the page. The page is written again after every change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pa.runWatch(cmd, args[0])
		},
	}
	pa.AddFlags(cmd)

	return cmd
}

func (pa *PageArgs) runWatch(cmd *cobra.Command, path string) error {
	err := pa.validate()
	if err != nil {
		return err
	}

	path, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve page path: %w", err)
	}

	ctx := cmd.Context()
	logger := log.WithContext(ctx)

	st, err := pa.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var page *restyle.Page
	loop := restyle.NewLoop(restyle.WithAfterTurn(func() {
		err := pa.writePage(cmd, page)
		if err != nil {
			logger.Error("write page", slog.Any("error", err))
		}
	}))
	page = pa.newPage(path, st, loop)
	defer page.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("add path to watcher: %w", err)
	}
	go reloadOnChange(ctx, watcher, path, page)

	loop.Post(func() {
		err := page.Load(ctx)
		if err != nil {
			logger.Error("load page", slog.Any("error", err))
		}
	})

	logger.Info("watching",
		slog.String("page", path),
		slog.String("host", pa.Host),
	)

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (pa *PageArgs) writePage(cmd *cobra.Command, page *restyle.Page) error {
	if page.Document() == nil {
		return nil
	}

	w, err := pa.output(cmd)
	if err != nil {
		return err
	}

	err = page.Document().Render(w)
	if err != nil {
		_ = w.Close()
		return err
	}
	if pa.Output == "" {
		_, err = fmt.Fprintln(w)
		if err != nil {
			return err
		}
	}

	return w.Close()
}

func reloadOnChange(ctx context.Context, w *fsnotify.Watcher, path string, page *restyle.Page) {
	logger := log.WithContext(ctx).With(slog.String("page", path))

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != path {
				continue
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) || evt.Has(fsnotify.Remove) {
				continue
			}

			logger.Debug("page changed, reloading", slog.String("event", evt.Op.String()))
			page.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("watch page", slog.Any("error", err))
		}
	}
}
