package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelSuccess
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarn:    "WARN",
	LevelError:   "ERROR",
	LevelFatal:   "FATAL",
	LevelSuccess: "SUCCESS",
}

var levelColors = map[LogLevel]*color.Color{
	LevelDebug:   color.New(color.FgCyan),
	LevelInfo:    color.New(color.FgGreen),
	LevelWarn:    color.New(color.FgYellow),
	LevelError:   color.New(color.FgRed),
	LevelFatal:   color.New(color.FgRed, color.Bold),
	LevelSuccess: color.New(color.FgGreen, color.Bold),
}

var levelEmojis = map[LogLevel]string{
	LevelDebug:   "🐛",
	LevelInfo:    "ℹ️",
	LevelWarn:    "⚠️",
	LevelError:   "❌",
	LevelFatal:   "💀",
	LevelSuccess: "✅",
}

var callerColor = color.New(color.FgHiBlack)

// Logger is the main logger struct
type Logger struct {
	mu         sync.Mutex
	minLevel   LogLevel
	logger     *log.Logger
	showCaller bool
	display    string
}

var (
	registryMu sync.Mutex
	registry   []*Logger
)

// New creates a new Logger instance
func New(out io.Writer, prefix string, flag int, minLevel LogLevel) *Logger {
	return &Logger{
		minLevel: minLevel,
		logger:   log.New(out, prefix, flag),
	}
}

// DefaultLogger creates a logger with default settings
func DefaultLogger() *Logger {
	return New(os.Stdout, "", 0, LevelInfo)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Level returns the minimum log level
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minLevel
}

// SetOutput sets the output destination
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetOutput(w)
}

// EnableCallerInfo enables/disables caller information
func (l *Logger) EnableCallerInfo(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.showCaller = enable
}

// Log logs a message at a specific level
func (l *Logger) Log(level LogLevel, msg string, args ...interface{}) {
	l.log(2, level, msg, args...)
}

func (l *Logger) log(depth int, level LogLevel, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	var callerInfo string
	if l.showCaller {
		_, file, line, ok := runtime.Caller(depth)
		if ok {
			parts := strings.Split(file, "/")
			if len(parts) > 3 {
				file = strings.Join(parts[len(parts)-3:], "/")
			}
			callerInfo = fmt.Sprintf("%s:%d", file, line)
		}
	}

	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	var sb strings.Builder
	sb.WriteString(levelColors[level].Sprint(levelNames[level]))
	sb.WriteString(" ")
	sb.WriteString(levelEmojis[level])
	sb.WriteString(" ")
	if l.display != "" {
		sb.WriteString(l.display)
		sb.WriteString(" ")
	}
	sb.WriteString(formattedMsg)
	if callerInfo != "" {
		sb.WriteString(" ")
		sb.WriteString(callerColor.Sprintf("(%s)", callerInfo))
	}

	l.logger.Println(sb.String())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(2, LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(2, LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(2, LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(2, LevelError, msg, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(2, LevelFatal, msg, args...)
	os.Exit(1)
}

// Success logs a success message
func (l *Logger) Success(msg string, args ...interface{}) {
	l.log(2, LevelSuccess, msg, args...)
}

// WithPrefix returns a new Logger with the specified display name
func (l *Logger) WithPrefix(display string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &Logger{
		minLevel:   l.minLevel,
		logger:     log.New(l.logger.Writer(), l.logger.Prefix(), l.logger.Flags()),
		showCaller: l.showCaller,
		display:    display,
	}
}

// PackageLogger creates a logger for one package. Package loggers follow
// SetLevelAll and SetOutputAll.
func PackageLogger(pkgName string, displayName string) *Logger {
	if displayName == "" {
		displayName = pkgName
	}
	l := DefaultLogger().WithPrefix(displayName)

	registryMu.Lock()
	registry = append(registry, l)
	registryMu.Unlock()
	return l
}

// SetLevelAll changes the level of every package logger. Caller info is
// shown at debug level.
func SetLevelAll(level LogLevel) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, l := range registry {
		l.SetLevel(level)
		l.EnableCallerInfo(level == LevelDebug)
	}
}

// SetOutputAll redirects every package logger.
func SetOutputAll(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, l := range registry {
		l.SetOutput(w)
	}
}

// Timed logs the duration of a function execution
func (l *Logger) Timed(label string, fn func() error) error {
	start := time.Now()
	l.Info("⏳ Starting %s...", label)
	if err := fn(); err != nil {
		l.Error("%s failed after %v", label, time.Since(start).Round(time.Millisecond))
		return err
	}
	l.Success("Completed %s in %v", label, time.Since(start).Round(time.Millisecond))
	return nil
}
