package tools

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is shared by the service packages, level from LOG_LEVEL
var Logger = NewLogger(os.Getenv("LOG_LEVEL"))

// NewLogger builds a JSON logger, so it can be parsed by datadog
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Record anything we log in the given file as well as stdout
func SetupLogFile(l *logrus.Logger, path string) (io.Closer, error) {
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	multi := io.MultiWriter(logFile, os.Stdout)
	log.SetOutput(multi)
	l.SetOutput(multi)
	return logFile, nil
}
