// Package logging builds the process-wide slog.Logger.
//
// Records always go to the console (coloured text or JSON). With rotation
// enabled they are also written as JSON to two files under the log
// directory: combined.log receives every enabled level and error.log only
// errors. Rotation and retention are delegated to lumberjack.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vesaa/gatewatch/internal/config"
)

// Managed log file names.
const (
	CombinedFile = "combined.log"
	ErrorFile    = "error.log"
)

// Setup is the configured logger plus the rotating files behind it.
type Setup struct {
	Logger *slog.Logger
	files  []*lumberjack.Logger
}

// New builds the logger described by cfg. Console output goes to console.
func New(cfg *config.Config, console io.Writer) (*Setup, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var consoleHandler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		consoleHandler = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level})
	} else {
		consoleHandler = NewColorHandler(console, level)
	}

	s := &Setup{}
	handlers := []slog.Handler{consoleHandler}

	if cfg.LogRotation {
		combined := s.rotating(cfg, CombinedFile)
		errorsOnly := s.rotating(cfg, ErrorFile)
		handlers = append(handlers,
			slog.NewJSONHandler(combined, &slog.HandlerOptions{Level: level}),
			slog.NewJSONHandler(errorsOnly, &slog.HandlerOptions{Level: slog.LevelError}),
		)
	}

	s.Logger = slog.New(NewFanout(handlers...))
	return s, nil
}

func (s *Setup) rotating(cfg *config.Config, name string) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, name),
		MaxSize:    cfg.LogMaxSizeMB,
		MaxAge:     cfg.LogMaxAgeDays,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}
	s.files = append(s.files, lj)
	return lj
}

// Files returns the paths of the managed log files, or nil without rotation.
func (s *Setup) Files() []string {
	if len(s.files) == 0 {
		return nil
	}
	out := make([]string, len(s.files))
	for i, f := range s.files {
		out[i] = f.Filename
	}
	return out
}

// Close flushes and closes the log files.
func (s *Setup) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fanout sends each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

// NewFanout combines handlers into one.
func NewFanout(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{handlers: hs}
}
