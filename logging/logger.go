// Package logging provides the redacting, deduplicating logger used by gomtl.
package logging

import (
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultDedupTTL is how long an identical WarnOnce message stays suppressed.
const DefaultDedupTTL = 60 * time.Second

const redacted = "[REDACTED]"

var redactions = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)[^\s&,;"']+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)(token\s*[=:]\s*)[^\s&,;"']+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)(password\s*[=:]\s*)[^\s&,;"']+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)(secret\s*[=:]\s*)[^\s&,;"']+`), "${1}" + redacted},
}

// Redact masks credentials (Bearer tokens, api_key=, token=, password=, secret=) in s.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}

// Logger wraps a zap logger. Messages flagged sensitive are redacted before
// they reach any sink.
type Logger struct {
	z   *zap.Logger
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// New wraps an existing zap logger. A nil logger yields a no-op Logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{
		z:    z,
		ttl:  DefaultDedupTTL,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(nil)
}

// NewDevelopment returns a human-readable logger writing to stderr at the given level.
func NewDevelopment(level zapcore.Level) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// WithDedupTTL sets the suppression window used by WarnOnce.
func (l *Logger) WithDedupTTL(ttl time.Duration) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttl = ttl
	return l
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Debug logs msg at debug level.
func (l *Logger) Debug(msg string, sensitive bool, fields ...zap.Field) {
	l.log(zapcore.DebugLevel, msg, sensitive, fields)
}

// Info logs msg at info level.
func (l *Logger) Info(msg string, sensitive bool, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, msg, sensitive, fields)
}

// Warn logs msg at warn level.
func (l *Logger) Warn(msg string, sensitive bool, fields ...zap.Field) {
	l.log(zapcore.WarnLevel, msg, sensitive, fields)
}

// Error logs msg at error level.
func (l *Logger) Error(msg string, sensitive bool, fields ...zap.Field) {
	l.log(zapcore.ErrorLevel, msg, sensitive, fields)
}

// WarnOnce logs msg at warn level unless the same message was logged within the TTL.
func (l *Logger) WarnOnce(msg string, sensitive bool, fields ...zap.Field) {
	if !l.admit(msg) {
		return
	}
	l.log(zapcore.WarnLevel, msg, sensitive, fields)
}

func (l *Logger) admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, at := range l.seen {
		if now.Sub(at) >= l.ttl {
			delete(l.seen, k)
		}
	}
	if _, dup := l.seen[key]; dup {
		return false
	}
	l.seen[key] = now
	return true
}

func (l *Logger) log(level zapcore.Level, msg string, sensitive bool, fields []zap.Field) {
	if ce := l.z.Check(level, ""); ce == nil {
		return
	}
	if sensitive {
		msg = Redact(msg)
		fields = redactFields(fields)
	}
	if ce := l.z.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// redactFields masks string and error fields; other field types carry no free text.
func redactFields(fields []zap.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch {
		case f.Type == zapcore.StringType:
			f.String = Redact(f.String)
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, Redact(err.Error()))
			}
		}
		out[i] = f
	}
	return out
}
