package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/hydra/pkg/engine"
)

// Logger is a zerolog.Logger that knows the engine's vocabulary: every
// helper returns a child logger tagged with one more piece of frame
// context.
type Logger struct {
	zlog zerolog.Logger
}

type loggerContextKey struct{}

// NewLogger builds the root logger. Console output is colored and
// timestamped to the millisecond so consecutive frames can be told apart.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	w, err := openLogOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "console" && w != io.Discard {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return &Logger{zlog: zerolog.New(w).Level(level).With().Timestamp().Logger()}, nil
}

func openLogOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "", "discard":
		return io.Discard, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Zerolog returns the underlying logger for packages that take a
// zerolog.Logger, such as the engine and the delegates.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in ctx, or a stderr logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func (l *Logger) child(with func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zlog: with(l.zlog.With()).Logger()}
}

// Component tags lines with the emitting subsystem.
func (l *Logger) Component(name string) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Str("component", name) })
}

// Pipeline tags lines with the pipeline being rendered.
func (l *Logger) Pipeline(name string) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Str("pipeline", name) })
}

// Frame tags lines with a frame's ID and sequence number.
func (l *Logger) Frame(frame engine.FrameInfo) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context {
		return c.Str("frame_id", frame.ID).Uint64("frame", frame.Sequence)
	})
}

// Phase tags lines with the step a frame is in.
func (l *Logger) Phase(p engine.Phase) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Str("phase", p.Step()) })
}

// Task tags lines with a task path.
func (l *Logger) Task(path string) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Str("task_path", path) })
}

// Span tags lines with a span's trace and span IDs. Invalid spans add
// nothing.
func (l *Logger) Span(sc trace.SpanContext) *Logger {
	if !sc.IsValid() {
		return l
	}
	return l.child(func(c zerolog.Context) zerolog.Context {
		return c.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	})
}

// With adds one field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithError attaches err.
func (l *Logger) WithError(err error) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

// Hook returns a logger that runs hook on every line.
func (l *Logger) Hook(hook zerolog.Hook) *Logger {
	return &Logger{zlog: l.zlog.Hook(hook)}
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zlog.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.zlog.Info().Msg(msg) }

func (l *Logger) Warn(msg string) { l.zlog.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.zlog.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }
