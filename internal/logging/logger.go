// Package logging provides categorized logging for nbprep on top of zap.
// Every subsystem logs through its category so output can be filtered by the
// "category" field. Until Initialize or SetLogger is called all logging is a
// no-op, which keeps library use and tests quiet.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // startup, config loading
	CategoryDiscover   Category = "discover"   // table-of-contents traversal
	CategoryDerive     Category = "derive"     // variant derivation
	CategoryCache      Category = "cache"      // execution cache
	CategoryPreprocess Category = "preprocess" // per-notebook orchestration
	CategoryWatch      Category = "watch"      // filesystem watcher
	CategoryCLI        Category = "cli"        // command layer
)

// Options configures the root logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // empty means stderr
}

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from opts.
func Initialize(opts Options) error {
	var cfg zap.Config
	if opts.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(l)
	return nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// LevelFromVerbosity maps a repeated -v count to a level name.
func LevelFromVerbosity(n int) string {
	switch {
	case n >= 2:
		return "debug"
	case n == 1:
		return "info"
	}
	return "warn"
}

// SetLogger replaces the root logger. Category loggers are rebuilt lazily.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Root().Sync()
}

// Get returns (or creates) the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    root.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying extra key-value fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Discover logs to the discover category
func Discover(format string, args ...interface{}) { Get(CategoryDiscover).Info(format, args...) }

// DiscoverDebug logs debug to the discover category
func DiscoverDebug(format string, args ...interface{}) { Get(CategoryDiscover).Debug(format, args...) }

// Derive logs to the derive category
func Derive(format string, args ...interface{}) { Get(CategoryDerive).Info(format, args...) }

// DeriveDebug logs debug to the derive category
func DeriveDebug(format string, args ...interface{}) { Get(CategoryDerive).Debug(format, args...) }

// Cache logs to the cache category
func Cache(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }

// Preprocess logs to the preprocess category
func Preprocess(format string, args ...interface{}) { Get(CategoryPreprocess).Info(format, args...) }

// PreprocessDebug logs debug to the preprocess category
func PreprocessDebug(format string, args ...interface{}) {
	Get(CategoryPreprocess).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }

// =============================================================================
// TIMING
// =============================================================================

// Timer measures one operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
