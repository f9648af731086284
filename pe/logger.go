package pe

import "github.com/sirupsen/logrus"

// Logger is the logging collaborator this package reports non-fatal
// anomalies through: an unknown stream name, a non-zero reserved CLI-header
// field, table bits above LAST. These are surfaced here rather than failing
// the parse outright.
type Logger interface {
	Warnf(format string, args ...any)
}

// logrusLogger adapts a *logrus.Logger to Logger. It is the default used
// when no Logger is supplied.
type logrusLogger struct {
	l *logrus.Logger
}

func (w logrusLogger) Warnf(format string, args ...any) { w.l.Warnf(format, args...) }

// DefaultLogger returns the package's default Logger, backed by logrus's
// standard logger.
func DefaultLogger() Logger { return logrusLogger{l: logrus.StandardLogger()} }

// NopLogger discards every warning. Useful for tests that want to assert on
// parse results without logrus output interleaved.
type NopLogger struct{}

func (NopLogger) Warnf(string, ...any) {}

func loggerOrDefault(l Logger) Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}
