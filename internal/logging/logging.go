package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Config represents the configuration for the process logger
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr or a file path
}

// sanitizeMessage normalizes a log value to a single line and removes
// control characters that can be used for log injection. Recipient
// local-parts come straight from the envelope and may hold anything.
func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.ReplaceAll(msg, "\n", " ")

	var b strings.Builder
	for _, r := range msg {
		if r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

var sensitiveFieldKeys = []string{
	"password",
	"pass",
	"secret",
	"authorization",
	"auth_header",
	"api_key",
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sk := range sensitiveFieldKeys {
		if strings.Contains(keyLower, sk) {
			return true
		}
	}
	return false
}

// replaceAttr redacts sensitive values and sanitizes strings.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***REDACTED***")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, sanitizeMessage(a.Value.String()))
	}
	return a
}

// LevelToString converts slog.Level to string
func LevelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// StringToLevel converts string to slog.Level
func StringToLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "DEBUG", "debug":
		return slog.LevelDebug, nil
	case "INFO", "info", "":
		return slog.LevelInfo, nil
	case "WARN", "warn", "WARNING", "warning":
		return slog.LevelWarn, nil
	case "ERROR", "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level")
	}
}

// LogLevelManager manages runtime log level adjustment
type LogLevelManager struct {
	level slog.LevelVar
	mu    sync.Mutex
}

var globalLogLevelManager = &LogLevelManager{}

// GetLogLevelManager returns the global log level manager
func GetLogLevelManager() *LogLevelManager {
	return globalLogLevelManager
}

// SetLevel sets the current log level
func (m *LogLevelManager) SetLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level.Set(level)
}

// GetLevel returns the current log level
func (m *LogLevelManager) GetLevel() slog.Level {
	return m.level.Level()
}

// NewHandler builds a slog handler writing to w with the configured format.
// The handler's level follows leveler.
func NewHandler(cfg Config, w io.Writer, leveler slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       leveler,
		ReplaceAttr: replaceAttr,
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// New returns a logger writing to w. An invalid level falls back to INFO
// with a warning.
func New(cfg Config, w io.Writer) *slog.Logger {
	level, err := StringToLevel(cfg.Level)
	var lv slog.LevelVar
	lv.Set(level)
	logger := slog.New(NewHandler(cfg, w, &lv))
	if err != nil {
		logger.Warn("invalid log level in config, defaulting to INFO",
			"configured_level", cfg.Level)
	}
	return logger
}

// Initialize installs the process-wide default logger and returns it
// together with a close function for file outputs.
// This should be called early in the application startup
func Initialize(cfg Config) (*slog.Logger, func() error, error) {
	level, err := StringToLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	globalLogLevelManager.SetLevel(level)

	var w io.Writer
	closeFn := func() error { return nil }
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, ferr := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if ferr != nil {
			return nil, nil, ferr
		}
		w = f
		closeFn = f.Close
	}

	logger := slog.New(NewHandler(cfg, w, &globalLogLevelManager.level))
	slog.SetDefault(logger)

	if err != nil {
		logger.Warn("invalid log level in config, defaulting to INFO",
			"configured_level", cfg.Level)
	}
	logger.Debug("logging initialized",
		"log_level", LevelToString(level),
		"format", cfg.Format)
	return logger, closeFn, nil
}
