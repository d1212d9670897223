package server

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// DefaultLogger writes structured entries through logrus.
type DefaultLogger struct {
	logger *logrus.Logger
}

// NewDefaultLogger logs text entries with millisecond timestamps to stdout.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return &DefaultLogger{logger: l}
}

// NewLogger wraps an existing logrus logger.
func NewLogger(l *logrus.Logger) *DefaultLogger {
	return &DefaultLogger{logger: l}
}

// SetLevel parses a logrus level name ("debug", "info", ...).
func (l *DefaultLogger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.logger.SetLevel(lvl)
	return nil
}

func (l *DefaultLogger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(logrus.DebugLevel, msg, fields...)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(logrus.InfoLevel, msg, fields...)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(logrus.ErrorLevel, msg, fields...)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(logrus.WarnLevel, msg, fields...)
}

func (l *DefaultLogger) log(level logrus.Level, msg string, fields ...Field) {
	if l.logger == nil {
		l.logger = logrus.StandardLogger()
	}
	if !l.logger.IsLevelEnabled(level) {
		return
	}

	entry := logrus.NewEntry(l.logger)
	if len(fields) > 0 {
		data := make(logrus.Fields, len(fields))
		for _, f := range fields {
			data[f.Key] = sanitizeValue(f.Value)
		}
		entry = entry.WithFields(data)
	}
	entry.Log(level, msg)
}

// Request bytes end up in log fields; cap their length.
func sanitizeValue(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		if len(s) > 100 {
			return s[:100] + "...[truncated]"
		}
	case []byte:
		if len(s) > 100 {
			return string(s[:100]) + "...[truncated]"
		}
		return string(s)
	}
	return v
}

// NullLogger discards all logs (for testing)
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, fields ...Field) {}
func (n *NullLogger) Info(msg string, fields ...Field)  {}
func (n *NullLogger) Error(msg string, fields ...Field) {}
func (n *NullLogger) Warn(msg string, fields ...Field)  {}
