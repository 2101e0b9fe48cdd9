package logging

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventLoggingConfig holds sampling and filtering of per-request events.
// Paths are relative to the /v0 prefix.
type EventLoggingConfig struct {
	SuccessSampleRate float64 `env:"LOG_SUCCESS_SAMPLE_RATE" envDefault:"0.1"`
	ExcludePaths      string  `env:"LOG_EXCLUDE_PATHS" envDefault:"/ping,/health,/version"`
	ErrorOnlyPaths    string  `env:"LOG_ERROR_ONLY_PATHS" envDefault:"/search/suggest"`
	RedactPatterns    string  `env:"LOG_REDACT_PATTERNS" envDefault:"password,token,secret,authorization,credential,bearer,api_key,apikey,private"`
}

// ParsedEventLoggingConfig is EventLoggingConfig split into lookup tables.
type ParsedEventLoggingConfig struct {
	SuccessSampleRate float64
	ExcludePaths      map[string]bool
	ErrorOnlyPaths    map[string]bool
	RedactRegex       *regexp.Regexp
}

func splitList(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pathSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, p := range splitList(list) {
		set[p] = true
	}
	return set
}

// ParseEventLoggingConfig parses cfg once at startup.
func ParseEventLoggingConfig(cfg *EventLoggingConfig) *ParsedEventLoggingConfig {
	parsed := &ParsedEventLoggingConfig{
		SuccessSampleRate: cfg.SuccessSampleRate,
		ExcludePaths:      pathSet(cfg.ExcludePaths),
		ErrorOnlyPaths:    pathSet(cfg.ErrorOnlyPaths),
	}

	patterns := splitList(cfg.RedactPatterns)
	for i, p := range patterns {
		patterns[i] = regexp.QuoteMeta(p)
	}
	if len(patterns) > 0 {
		parsed.RedactRegex = regexp.MustCompile("(?i)(" + strings.Join(patterns, "|") + ")")
	}
	return parsed
}

func DefaultEventLoggingConfig() *EventLoggingConfig {
	return &EventLoggingConfig{
		SuccessSampleRate: 0.1,
		ExcludePaths:      "/ping,/health,/version",
		ErrorOnlyPaths:    "/search/suggest",
		RedactPatterns:    "password,token,secret,authorization,credential,bearer,api_key,apikey,private",
	}
}

// Fallback loggers for components constructed without one.
var (
	APIEventLog     = newBaseEventLogger("api")
	ServiceEventLog = newBaseEventLogger("service")
)

func newBaseEventLogger(layer string) *zap.Logger {
	return NewLogger(layer)
}

// settings is replaced as a whole so readers never see a half-applied config.
type settings struct {
	redact     *regexp.Regexp
	sampleRate float64
}

var current atomic.Pointer[settings]

func init() {
	Configure(DefaultEventLoggingConfig())
}

// Configure installs the sampling rate and redaction patterns process-wide.
func Configure(cfg *EventLoggingConfig) *ParsedEventLoggingConfig {
	parsed := ParseEventLoggingConfig(cfg)
	current.Store(&settings{redact: parsed.RedactRegex, sampleRate: parsed.SuccessSampleRate})
	return parsed
}

// L returns base enriched with the request id carried by ctx.
func L(ctx context.Context, base *zap.Logger) *zap.Logger {
	return WithRequestID(ctx, base)
}

// ShouldLog makes the tail-sampling decision for info and debug events.
// Requests without an id are always logged.
func ShouldLog(ctx context.Context) bool {
	reqID := GetRequestID(ctx)
	if reqID == "" {
		return true
	}
	return HashRequestIDToFloat(reqID) < current.Load().sampleRate
}

const redactedValue = "***"

// RedactFields replaces the value of every field whose key matches a
// configured pattern.
func RedactFields(fields ...zap.Field) []zap.Field {
	re := current.Load().redact
	if re == nil {
		return fields
	}
	redacted := make([]zap.Field, len(fields))
	for i, f := range fields {
		if re.MatchString(f.Key) {
			redacted[i] = zap.String(f.Key, redactedValue)
		} else {
			redacted[i] = f
		}
	}
	return redacted
}

// Log writes a redacted event through base. Warnings and errors are always
// written; info and debug follow the request's sampling decision, so every
// event of one request is either kept or dropped together.
func Log(ctx context.Context, base *zap.Logger, level zapcore.Level, message string, fields ...zap.Field) {
	if level < zapcore.WarnLevel && !ShouldLog(ctx) {
		return
	}
	L(ctx, base).Log(level, message, RedactFields(fields...)...)
}

// HashRequestIDToFloat maps a request id to [0, 1] deterministically.
func HashRequestIDToFloat(requestID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(requestID))
	return float64(h.Sum64()) / float64(^uint64(0))
}

// EventLevelFromStatusCode logs server errors as errors and client errors as
// warnings.
func EventLevelFromStatusCode(statusCode int) zapcore.Level {
	switch {
	case statusCode >= 500:
		return zapcore.ErrorLevel
	case statusCode >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
