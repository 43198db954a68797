// Package logging builds the process logger from BENEISSUE_LOG_LEVEL and
// BENEISSUE_LOG_FORMAT.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SecretEnv names the variables whose values never reach a log record.
// Agent stderr and gh error output are logged verbatim and can echo them.
var SecretEnv = []string{"ANTHROPIC_API_KEY", "GITHUB_TOKEN", "GH_TOKEN", "BENEISSUE_DATABASE_URL", "BENEISSUE_S3_SECRET_KEY"}

const redacted = "[REDACTED]"

// New returns a logger writing to w (stderr when nil).
func New(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(os.Getenv("BENEISSUE_LOG_LEVEL")),
		ReplaceAttr: redactor(secrets()),
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("BENEISSUE_LOG_FORMAT")), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func secrets() []string {
	var out []string
	for _, name := range SecretEnv {
		// Short values would blank out ordinary words.
		if v := os.Getenv(name); len(v) >= 8 {
			out = append(out, v)
		}
	}
	return out
}

// redactor masks secret values inside string attributes and error values.
func redactor(values []string) func([]string, slog.Attr) slog.Attr {
	if len(values) == 0 {
		return nil
	}
	mask := func(s string) (string, bool) {
		hit := false
		for _, v := range values {
			if strings.Contains(s, v) {
				s = strings.ReplaceAll(s, v, redacted)
				hit = true
			}
		}
		return s, hit
	}
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Value.Kind() {
		case slog.KindString:
			if s, ok := mask(a.Value.String()); ok {
				a.Value = slog.StringValue(s)
			}
		case slog.KindAny:
			if err, isErr := a.Value.Any().(error); isErr {
				if s, ok := mask(err.Error()); ok {
					a.Value = slog.StringValue(s)
				}
			}
		}
		return a
	}
}
