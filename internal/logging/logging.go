// Package logging provides the process-wide structured logger. It pairs a
// slog.Handler writing newline-delimited JSON to a rotated file (one file
// per calendar day, mirroring the example pack's MQTT broker logger) with a
// colorized console handler for TTY output (fatih/color, same pairing the
// pack uses).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// RunID is a process-lifetime identifier, attached to every log line so
// concurrent server instances writing to a shared volume can be told apart.
var RunID = uuid.New().String()

// fileHandler rotates its backing *os.File when the calendar day changes.
type fileHandler struct {
	mu         sync.Mutex
	baseDir    string
	currentDay int
	file       *os.File
	inner      slog.Handler
	level      slog.Leveler
}

// NewFileHandler opens (creating if necessary) baseDir/<YYYY-MM-DD>.log and
// returns a slog.Handler that rotates to a new file whenever the day rolls
// over.
func NewFileHandler(baseDir string, level slog.Leveler) (*fileHandler, error) {
	h := &fileHandler{baseDir: baseDir, level: level}
	if err := h.rotateIfNeeded(time.Now()); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *fileHandler) rotateIfNeeded(now time.Time) error {
	day := now.YearDay() + now.Year()*1000
	if day == h.currentDay && h.inner != nil {
		return nil
	}

	if err := os.MkdirAll(h.baseDir, 0o750); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}

	path := filepath.Join(h.baseDir, now.Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}

	if h.file != nil {
		_ = h.file.Close()
	}
	h.file = f
	h.currentDay = day
	h.inner = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: h.level})
	return nil
}

// Close releases the underlying file.
func (h *fileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}

// consoleWriter writes level-tinted, human-readable lines to w (stderr by
// default), using fatih/color for the level tag only.
type consoleWriter struct {
	w io.Writer
}

func (c *consoleWriter) Write(level slog.Level, line string) {
	var paint func(format string, a ...interface{}) string
	switch {
	case level >= slog.LevelError:
		paint = color.New(color.FgRed, color.Bold).Sprintf
	case level >= slog.LevelWarn:
		paint = color.New(color.FgYellow).Sprintf
	case level >= slog.LevelInfo:
		paint = color.New(color.FgCyan).Sprintf
	default:
		paint = color.New(color.FgWhite).Sprintf
	}
	fmt.Fprintln(c.w, paint("%s", line))
}

// New builds the process-wide slog.Logger: JSON to a rotated file plus a
// colorized line to stderr for anything at minLevel or above.
func New(baseDir string, minLevel slog.Level) (*slog.Logger, func() error, error) {
	fh, err := NewFileHandler(baseDir, minLevel)
	if err != nil {
		return nil, nil, err
	}

	mh := &multiHandler{
		file:    fh,
		console: &consoleWriter{w: os.Stderr},
		level:   minLevel,
		attrs:   nil,
	}

	logger := slog.New(mh).With(slog.String("run_id", RunID))
	return logger, fh.Close, nil
}

// multiHandler fans every record out to the rotating file (as JSON) and to
// the colorized console writer (as a compact line). Attrs added via
// WithAttrs go to both sinks; group names added via WithGroup appear only
// as tags on the console line and do not qualify keys in the file record.
type multiHandler struct {
	file    *fileHandler
	console *consoleWriter
	level   slog.Leveler
	attrs   []slog.Attr
	groups  []string
}

func (h *multiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	h.file.mu.Lock()
	if err := h.file.rotateIfNeeded(r.Time); err != nil {
		h.file.mu.Unlock()
		return err
	}
	handler := h.file.inner
	h.file.mu.Unlock()

	rec := r.Clone()
	for _, a := range h.attrs {
		rec.AddAttrs(a)
	}
	if err := handler.Handle(ctx, rec); err != nil {
		return err
	}

	line := formatLine(r, h.attrs, h.groups)
	h.console.Write(r.Level, line)
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func formatLine(r slog.Record, attrs []slog.Attr, groups []string) string {
	line := fmt.Sprintf("%s %-5s %s", r.Time.Format(time.RFC3339), r.Level, r.Message)
	for _, g := range groups {
		line += " [" + g + "]"
	}
	for _, a := range attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	return line
}
