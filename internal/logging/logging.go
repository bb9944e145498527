// Package logging builds the process logger and adapts it for gorm.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stdout. Unknown levels fall back to info;
// format "json" selects the JSON formatter, anything else the text formatter.
func New(level, format string) *logrus.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with a custom sink.
func NewWithWriter(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// GormWriter satisfies gorm's logger.Writer, sending SQL logs through logrus.
type GormWriter struct {
	Entry *logrus.Entry
}

func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Entry.Warnf(format, args...)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
