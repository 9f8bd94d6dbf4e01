package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the logging level.
type Level = zapcore.Level

const (
	Debug = zapcore.DebugLevel
	Info  = zapcore.InfoLevel
	Warn  = zapcore.WarnLevel
	Error = zapcore.ErrorLevel
)

var globalLogger atomic.Pointer[zap.SugaredLogger]

func init() {
	globalLogger.Store(zap.NewNop().Sugar())
}

// Init initializes the logger. Console output goes to stderr so it never
// mixes with rendered reports on stdout.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		globalLogger.Store(zap.NewNop().Sugar())
		return nil
	}

	var sinks []zapcore.WriteSyncer
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}
	if console || len(sinks) == 0 {
		sinks = append(sinks, zapcore.Lock(os.Stderr))
	}

	install(zapcore.NewMultiWriteSyncer(sinks...), parseLevel(levelStr))
	return nil
}

// SetOutput routes log output to w at the given level.
func SetOutput(w io.Writer, levelStr string) {
	install(zapcore.AddSync(w), parseLevel(levelStr))
}

func install(ws zapcore.WriteSyncer, level Level) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " "

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
	globalLogger.Store(zap.New(core).Sugar())
}

func parseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return globalLogger.Load().With(keysAndValues...)
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	globalLogger.Load().Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	globalLogger.Load().Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	globalLogger.Load().Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	globalLogger.Load().Errorf(format, args...)
}

// Sync flushes buffered log entries.
func Sync() error {
	return globalLogger.Load().Sync()
}
