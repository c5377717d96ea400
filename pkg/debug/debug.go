// Package debug provides category-based debug logging and slog setup for
// codechat.
//
// Categories select WHAT is logged at debug level (CODECHAT_DEBUG, or the
// log.debug config key). The level selects HOW MUCH (CODECHAT_LOG_LEVEL, or
// log.level). The environment wins over config.
//
//	debug.Log("sandbox", "created", "id", env.ID())
//
// Categories: providers, engine, executor, sandbox, http, auth, audit, mcp, all.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// LevelTrace is below slog.LevelDebug. At TRACE full payloads (code, model
// output, sandbox responses) are logged.
const LevelTrace = slog.LevelDebug - 4

// Options configures Init.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// categories is read-only after Init.
var categories = parseCategories(os.Getenv("CODECHAT_DEBUG"))

// Init installs the default slog logger and the enabled categories.
func Init(opts Options) {
	cats := os.Getenv("CODECHAT_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	categories = parseCategories(cats)

	level := os.Getenv("CODECHAT_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}

	slog.SetDefault(slog.New(NewHandler(opts.Output, opts.Format, ParseLevel(level))))
}

// NewHandler builds the slog handler used by Init. A nil writer means stderr.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message tagged with category when it is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message tagged with category when it is enabled.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level. Unknown values mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	keys := lo.Keys(categories)
	slices.Sort(keys)
	return keys
}

// Truncate returns s cut to maxLen bytes with "..." appended when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
