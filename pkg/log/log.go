// Package log bootstraps the daemon's structured logger.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls how the logger is constructed. LogPath is the file the
// production logger appends to; when empty, production logs are discarded.
type Options struct {
	LogPath   string
	Debug     bool
	Version   string
	Commit    string
	BuildDate string
}

// New returns a logger entry pre-loaded with build metadata, mirroring the
// field set the teacher attaches to every log line.
func New(opts Options) *logrus.Entry {
	var logger *logrus.Logger
	if opts.Debug || os.Getenv("HACK_DEBUG") == "1" {
		logger = newDevelopmentLogger(opts)
	} else {
		logger = newProductionLogger(opts)
	}

	logger.Formatter = &logrus.JSONFormatter{}

	return logger.WithFields(logrus.Fields{
		"debug":     opts.Debug,
		"version":   opts.Version,
		"commit":    opts.Commit,
		"buildDate": opts.BuildDate,
	})
}

func newDevelopmentLogger(opts Options) *logrus.Logger {
	logger := logrus.New()
	level := logrus.DebugLevel
	if os.Getenv("HACK_LOG_LEVEL") != "" {
		level = levelFromEnv()
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	return logger
}

func newProductionLogger(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(levelFromEnv())

	if opts.LogPath == "" {
		logger.Out = io.Discard
		return logger
	}

	file, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Out = io.Discard
		return logger
	}
	logger.Out = file
	return logger
}

func levelFromEnv() logrus.Level {
	level, err := logrus.ParseLevel(os.Getenv("HACK_LOG_LEVEL"))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
