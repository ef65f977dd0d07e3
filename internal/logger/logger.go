// Package logger wraps zap's sugared logger with key/value redaction so
// bearer tokens, API keys and passwords never reach the log sink.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger. mode "prod" selects zap's JSON production config;
// anything else uses the console development config.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests and as the
// fallback when a component is constructed without one.
func Nop() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) Sync() { _ = l.s.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, redact(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, redact(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, redact(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, redact(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.s.Fatalw(msg, redact(kv)...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(redact(kv)...)}
}

// OrNop lets constructors accept a nil *Logger.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func redact(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		if isSecretKey(strings.ToLower(key)) {
			out = append(out, key, "[REDACTED]")
			continue
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

func isSecretKey(key string) bool {
	for _, s := range []string{"token", "authorization", "password", "secret", "api_key", "apikey"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
