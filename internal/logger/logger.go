// Package logger provides the process-wide structured logger, built on
// log/slog with a custom TRACE level below slog.LevelDebug and rotation
// via lumberjack, the way the teacher's internal/logger does.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jiripospisil/mountpoint-s3/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels. slog only predefines Debug/Info/Warn/Error; TRACE sits
// below Debug and OFF sits above Error, so nothing at all is logged.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func severityToLevel(s cfg.LogSeverity) slog.Level {
	switch s {
	case cfg.TraceLogSeverity:
		return LevelTrace
	case cfg.DebugLogSeverity:
		return LevelDebug
	case cfg.WarningLogSeverity:
		return LevelWarn
	case cfg.ErrorLogSeverity:
		return LevelError
	case cfg.OffLogSeverity:
		return LevelOff
	default:
		return LevelInfo
	}
}

// loggerFactory builds slog.Handlers for the currently configured output
// and format, and remembers enough state that SetLogFormat can rebuild
// the default logger without losing the active level or destination.
type loggerFactory struct {
	file      *os.File
	sysWriter io.Writer
	format    string
	level     cfg.LogSeverity
	levelVar  *slog.LevelVar
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	if f.sysWriter != nil {
		return f.sysWriter
	}
	return os.Stderr
}

func (f *loggerFactory) createHandler() slog.Handler {
	if f.format == "json" {
		return &jsonHandler{w: f.writer(), levelVar: f.levelVar}
	}
	return &textHandler{w: f.writer(), levelVar: f.levelVar}
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		format:    "text",
		level:     cfg.InfoLogSeverity,
		levelVar:  newLevelVar(LevelInfo),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
)

func newLevelVar(l slog.Level) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(l)
	return v
}

func setLoggingLevel(severity cfg.LogSeverity, levelVar *slog.LevelVar) {
	levelVar.Set(severityToLevel(severity))
}

func rebuild() {
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

// InitLogFile points the default logger at a rotated file, using
// lumberjack exactly as the teacher's internal/logger does, and applies
// the configured severity and format. An empty FilePath keeps logging on
// stderr.
func InitLogFile(lc cfg.LoggingConfig) error {
	levelVar := newLevelVar(severityToLevel(lc.Severity))

	factory := &loggerFactory{
		format:   lc.Format,
		level:    lc.Severity,
		levelVar: levelVar,
	}
	if factory.format == "" {
		factory.format = "text"
	}

	if lc.FilePath != "" {
		factory.sysWriter = &lumberjack.Logger{
			Filename:   string(lc.FilePath),
			MaxSize:    lc.LogRotate.MaxFileSizeMb,
			MaxBackups: lc.LogRotate.BackupFileCount,
			Compress:   lc.LogRotate.Compress,
		}
	}

	defaultLoggerFactory = factory
	rebuild()
	return nil
}

// SetLogFormat switches the active handler's output format ("text" or
// "json") without disturbing the configured level or destination.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	rebuild()
}

func logf(level slog.Level, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}

func Tracef(format string, args ...interface{}) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }

// Enabled reports whether the default logger would currently emit a
// message at the given severity; used by callers on a hot path who want
// to skip formatting an unused message.
func Enabled(level slog.Level) bool {
	return defaultLoggerFactory.levelVar.Level() <= level
}
