// Package log sets up the [slog.Handler] of the restyle command and passes
// loggers to the engine and the stores through contexts.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/trace"

	charmlog "github.com/charmbracelet/log"
)

// Format selects the output encoding of log records.
type Format string

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")
)

// levels maps the accepted --log-level values, including aliases.
var levels = map[string]slog.Level{
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
}

var (
	// AllLevels lists the level names offered for completion.
	AllLevels = []string{"error", "warn", "info", "debug"}
	// AllFormats lists the format names offered for completion.
	AllFormats = []string{string(FormatJSON), string(FormatLogfmt), string(FormatText)}
)

// traceIDLen is how much of the trace id ends up in log records.
const traceIDLen = 8

type ctxKey struct{}

// CreateHandlerWithStrings parses flag values and calls [CreateHandler].
func CreateHandlerWithStrings(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidArgument, ErrUnknownLogLevel, level)
	}

	f := Format(strings.ToLower(format))
	switch f {
	case FormatJSON, FormatLogfmt, FormatText:
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidArgument, ErrUnknownLogFormat, format)
	}

	return CreateHandler(w, lvl, f), nil
}

// CreateHandler returns a handler writing records at or above level to w.
// The text format is rendered by charmbracelet/log for terminals; an unknown
// format falls back to it.
func CreateHandler(w io.Writer, level slog.Level, format Format) slog.Handler {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatLogfmt:
		return slog.NewTextHandler(w, opts)
	}

	logger := charmlog.NewWithOptions(w, charmlog.Options{
		//nolint:gosec // G115: slog levels are small.
		Level:           charmlog.Level(int32(level)),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		ReportCaller:    true,
		TimeFormat:      time.TimeOnly,
	})
	logger.SetColorProfile(termenv.ColorProfile())

	return logger
}

// NewContext returns a copy of ctx that carries logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithContext returns the logger carried by ctx, or [slog.Default]. Inside a
// span, records get the first characters of the trace id as trace_id.
func WithContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With(slog.String("trace_id", sc.TraceID().String()[:traceIDLen]))
}
