package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jiripospisil/mountpoint-s3/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func redirectToBuffer(buf *bytes.Buffer, format string, severity cfg.LogSeverity) {
	levelVar := newLevelVar(severityToLevel(severity))
	defaultLoggerFactory = &loggerFactory{sysWriter: buf, format: format, level: severity, levelVar: levelVar}
	rebuild()
}

func emitAtEveryLevel() {
	Tracef("trace line")
	Debugf("debug line")
	Infof("info line")
	Warnf("warning line")
	Errorf("error line")
}

func (s *LoggerTestSuite) TestTextFormat_SeverityFiltering() {
	cases := []struct {
		severity cfg.LogSeverity
		minLevel slog.Level
	}{
		{cfg.TraceLogSeverity, LevelTrace},
		{cfg.DebugLogSeverity, LevelDebug},
		{cfg.InfoLogSeverity, LevelInfo},
		{cfg.WarningLogSeverity, LevelWarn},
		{cfg.ErrorLogSeverity, LevelError},
		{cfg.OffLogSeverity, LevelOff},
	}

	levels := []slog.Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError}
	names := []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR"}

	for _, c := range cases {
		var buf bytes.Buffer
		redirectToBuffer(&buf, "text", c.severity)

		for i, lvl := range levels {
			buf.Reset()
			logf(lvl, names[i]+" line")
			out := buf.String()
			if lvl < c.minLevel {
				assert.Empty(s.T(), out, "severity %s should suppress %s", c.severity, names[i])
			} else {
				assert.Regexp(s.T(), regexp.MustCompile(`^time="[0-9/: .]{26}" severity=`+names[i]+` message="`+names[i]+` line"`), out)
			}
		}
	}
}

func (s *LoggerTestSuite) TestJSONFormat() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "json", cfg.InfoLogSeverity)

	Infof("hello %s", "world")
	out := buf.String()

	assert.Regexp(s.T(), regexp.MustCompile(`^\{"timestamp":\{"seconds":\d+,"nanos":\d+\},"severity":"INFO","message":"hello world"\}`), out)
}

func (s *LoggerTestSuite) TestSetLogFormat() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", cfg.InfoLogSeverity)

	SetLogFormat("json")
	assert.Equal(s.T(), "json", defaultLoggerFactory.format)

	// rebuild() swapped the handler but kept writing to the same buffer
	// only if we re-point sysWriter; SetLogFormat intentionally doesn't
	// touch the destination, so redirect again to observe the new format.
	redirectToBuffer(&buf, "json", cfg.InfoLogSeverity)
	Infof("after switch")
	assert.Contains(s.T(), buf.String(), `"severity":"INFO"`)
}

func (s *LoggerTestSuite) TestInitLogFileDefaultsToTextFormat() {
	err := InitLogFile(cfg.LoggingConfig{Severity: cfg.DebugLogSeverity})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "text", defaultLoggerFactory.format)
	assert.Equal(s.T(), LevelDebug, defaultLoggerFactory.levelVar.Level())
}
