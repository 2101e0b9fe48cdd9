package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// Log encodings.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options selects the level and encoding of process loggers.
type Options struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Validate reports an unknown level or format.
func (o Options) Validate() error {
	if _, err := zapcore.ParseLevel(o.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.Level, err)
	}
	switch o.Format {
	case "", FormatJSON, FormatConsole:
		return nil
	}
	return fmt.Errorf("unknown log format %q (want %s or %s)", o.Format, FormatJSON, FormatConsole)
}

// NewLogger creates a named zap production logger.
func NewLogger(name string) *zap.Logger {
	logger, err := New(name, Options{})
	if err != nil {
		panic(err)
	}
	return logger
}

// New builds a named logger writing to stderr. Zero Options give the
// production defaults.
func New(name string, opts Options) (*zap.Logger, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if opts.Format == FormatConsole {
		cfg.Encoding = FormatConsole
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	level, _ := zapcore.ParseLevel(opts.Level)
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(name), nil
}

// WithRequestID returns a logger with request_id from context.
func WithRequestID(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		return logger.With(zap.String("request_id", reqID))
	}
	return logger
}

// SetRequestID stores request_id in context (call once in middleware).
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves request_id from context.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}
