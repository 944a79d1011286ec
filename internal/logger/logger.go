// internal/logger/logger.go
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

// Logger configuration
type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
	LogLevel      string // DEBUG, INFO, WARN, ERROR
	NoColor       bool
	Console       io.Writer // defaults to os.Stdout
}

var (
	initialized int32 // 0 = not initialized, 1 = initialized
	logger      *slog.Logger
	logFile     *os.File
	timeZone    *time.Location
	logFilePath string
	mu          sync.Mutex // protect against concurrent initialization
)

// SetupLogger initializes the logger with file and console output.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "Local"
	}
	if config.LogFileFormat == "" {
		config.LogFileFormat = "stockscan_%s.log"
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to load time zone '%s': %w", config.TimeZone, err)
	}
	timeZone = loc

	if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
		return fmt.Errorf("failed to create logs directory '%s': %w", config.LogsDirectory, err)
	}

	logFileName := fmt.Sprintf(config.LogFileFormat, time.Now().In(loc).Format("2006-01-02"))

	// Respect whether LogFileFormat is an absolute path or not
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(config.LogsDirectory, logFileName)
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilePath, err)
	}
	logFile = f

	level := ParseLevel(config.LogLevel)
	console := config.Console
	if console == nil {
		console = os.Stdout
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: localTime,
	})
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    config.NoColor,
	})
	logger = slog.New(fanout{fileHandler, consoleHandler})

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

// Close flushes and releases the log file. Later calls fall back to the standard logger.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	atomic.StoreInt32(&initialized, 0)
	logger = nil
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ParseLevel maps a level name to a slog level; unknown names mean INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
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

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

func LogMessage(level slog.Level, message string, v ...interface{}) {
	formattedMsg := fmt.Sprintf(message, v...)
	if !IsInitialized() {
		log.Printf("[%s] %s", level, formattedMsg)
		return
	}

	_, file, line, _ := runtime.Caller(2)
	logger.Log(context.Background(), level, formattedMsg, "source", fmt.Sprintf("%s:%d", filepath.Base(file), line))
}

func LogDebug(message string, v ...interface{}) { LogMessage(slog.LevelDebug, message, v...) }
func LogInfo(message string, v ...interface{})  { LogMessage(slog.LevelInfo, message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage(slog.LevelWarn, message, v...) }
func LogError(message string, v ...interface{}) { LogMessage(slog.LevelError, message, v...) }
func LogFatal(message string, v ...interface{}) {
	LogMessage(slog.LevelError+4, message, v...)
	os.Exit(1)
}

// LogFields writes a structured record; args are slog key/value pairs.
func LogFields(level slog.Level, message string, args ...any) {
	if !IsInitialized() {
		log.Printf("[%s] %s %v", level, message, args)
		return
	}
	logger.Log(context.Background(), level, message, args...)
}

func LogHTTPError(r *http.Request, status int, err error) {
	clientIP := GetClientIP(r)
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, clientIP, err)
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func localTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && timeZone != nil {
		return slog.String(slog.TimeKey, a.Value.Time().In(timeZone).Format("2006-01-02 15:04:05 MST"))
	}
	return a
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
