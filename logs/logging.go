// omp-launcher/logs/logging.go
package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const KeyComponent = "component"

// Options configures the root logger.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	Output io.Writer

	// File is the native log file. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// handlerBox wraps the active root handler.
type handlerBox struct{ h slog.Handler }

// switchableHandler lets package-level loggers created before Init pick up
// the configured handler.
type switchableHandler struct {
	current *atomic.Pointer[handlerBox]
	attrs   []slog.Attr
	groups  []string
}

func (h *switchableHandler) materialize() slog.Handler {
	handler := h.current.Load().h
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.materialize().Enabled(ctx, level)
}

func (h *switchableHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.materialize().Handle(ctx, r)
}

func (h *switchableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &switchableHandler{current: h.current, attrs: merged, groups: append([]string(nil), h.groups...)}
}

func (h *switchableHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string(nil), h.groups...), name)
	return &switchableHandler{current: h.current, attrs: append([]slog.Attr(nil), h.attrs...), groups: groups}
}

var (
	root = func() *switchableHandler {
		v := &atomic.Pointer[handlerBox]{}
		v.Store(&handlerBox{h: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})})
		return &switchableHandler{current: v}
	}()
	defaultLogger = slog.New(root)

	fileMu     sync.Mutex
	nativeFile *RotatingWriter
)

func init() {
	slog.SetDefault(defaultLogger)
}

// Init configures the root handler and opens the native log file.
// Call once after the launcher config is loaded.
func Init(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	root.current.Store(&handlerBox{h: handler})

	fileMu.Lock()
	defer fileMu.Unlock()
	if nativeFile != nil {
		nativeFile.Close()
		nativeFile = nil
	}
	if opts.File == "" {
		return nil
	}
	rw, err := NewRotatingWriter(opts.File, opts.MaxSizeMB, opts.MaxBackups)
	if err != nil {
		return fmt.Errorf("open native log file: %w", err)
	}
	nativeFile = rw
	return nil
}

// Close flushes and closes the native log file.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if nativeFile == nil {
		return nil
	}
	err := nativeFile.Close()
	nativeFile = nil
	return err
}

// Forward mirrors msg into the native log file. It is the explicit escape
// hatch for failures that must survive a crash of the front-end.
func Forward(msg string) {
	fileMu.Lock()
	defer fileMu.Unlock()
	if nativeFile == nil {
		return
	}
	line := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), strings.TrimSpace(msg))
	if _, err := nativeFile.Write([]byte(line)); err != nil {
		defaultLogger.Warn("native log write failed", "error", err)
	}
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
