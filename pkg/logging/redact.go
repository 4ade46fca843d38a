package logging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// The gateway resolves passwordCommand output into child process
// environments, so credentials routinely pass close to the logging path:
// spawn diagnostics, child stderr lines, JSON-RPC error strings. The
// redaction layer scrubs anything that looks like a secret before a
// record reaches the output handler.

// secretValuePatterns match a secret embedded in free-form text. Each
// pattern's first capture group is the prefix to keep; the remainder is
// replaced with the redaction marker.
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(Authorization:\s*)\S+(\s+\S+)?`),
	regexp.MustCompile(`(?i)(Bearer\s+)\S+`),
	regexp.MustCompile(`(?i)((?:password|passwd|secret|api[_-]?key|token|credentials?|auth[_-]?token)\s*[=:]\s*)\S+`),
}

// secretKeyPattern matches env-var or attribute names that hold secrets
// outright (GITHUB_TOKEN, API_KEY, ...); their whole value is replaced.
var secretKeyPattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|key|credential|auth|api[_-]?key)`)

const redactedMarker = "[REDACTED]"

// RedactingHandler is a slog.Handler that scrubs secret-looking values
// from the message and every string-valued attribute of a record before
// forwarding it to the wrapped handler.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps inner with secret redaction.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.redactAttr(a))
		return true
	})

	clean := slog.NewRecord(r.Time, r.Level, redactText(r.Message), r.PC)
	clean.AddAttrs(attrs...)
	return h.inner.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if isSecretKey(a.Key) {
			return slog.String(a.Key, redactedMarker)
		}
		return slog.String(a.Key, redactText(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]any, len(group))
		for i, ga := range group {
			redacted[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindAny:
		return h.redactAnyValue(a)
	default:
		return a
	}
}

// redactAnyValue covers the non-scalar shapes the gateway actually logs:
// argv slices for secret commands, env maps for child spawns, and plain
// error values.
func (h *RedactingHandler) redactAnyValue(a slog.Attr) slog.Attr {
	switch val := a.Value.Any().(type) {
	case []string:
		redacted := make([]string, len(val))
		for i, s := range val {
			redacted[i] = redactText(s)
		}
		return slog.Any(a.Key, redacted)
	case map[string]string:
		return slog.Any(a.Key, RedactEnv(val))
	case error:
		return slog.String(a.Key, redactText(val.Error()))
	case fmt.Stringer:
		return slog.String(a.Key, redactText(val.String()))
	default:
		return a
	}
}

func redactText(s string) string {
	for _, p := range secretValuePatterns {
		s = p.ReplaceAllString(s, "${1}"+redactedMarker)
	}
	return s
}

// RedactEnv returns a copy of env with the values of secret-named
// variables replaced. Used when logging a child's spawn environment.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	redacted := make(map[string]string, len(env))
	for k, v := range env {
		if isSecretKey(k) {
			redacted[k] = redactedMarker
		} else {
			redacted[k] = redactText(v)
		}
	}
	return redacted
}

func isSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}
