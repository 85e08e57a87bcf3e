package test

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that is silent unless TEST_LOGS is set.
// TEST_LOGS=2 logs at debug, 3 at trace, json switches to the json formatter,
// anything else logs at info.
func NewLogger() *logrus.Logger {
	l := logrus.New()

	v := os.Getenv("TEST_LOGS")
	if v == "" {
		l.SetOutput(io.Discard)
		return l
	}

	switch v {
	case "2":
		l.SetLevel(logrus.DebugLevel)
	case "3":
		l.SetLevel(logrus.TraceLevel)
	case "json":
		l.Formatter = &logrus.JSONFormatter{}
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	return l
}

// NewCapturedLogger returns a logger writing plain, timestamp free text lines
// into the returned buffer.
func NewCapturedLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.Out = buf
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	}
	return l, buf
}
