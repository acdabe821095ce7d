package main

import (
	"strings"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// logLevel maps the configured level onto a glog level name. Verbose wins.
func logLevel(level string, verbose bool) string {
	if verbose {
		return "debug"
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return glog.Trace
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return "info"
	}
}

func newRootLogger(level string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("authctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

type loggers struct {
	root *glog.BaseLogger
}

// get returns a named child; children inherit the root level.
func (l loggers) get(name string) session.Logger {
	return l.root.GetLogger(name)
}
