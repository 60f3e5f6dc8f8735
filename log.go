package gorefit

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// logger is the package diagnostic logger. It defaults to the logrus standard
// logger and may be replaced by SetLogger.
var logger log.FieldLogger = log.StandardLogger().WithField("pkg", "gorefit")

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(l log.FieldLogger) {
	if l == nil {
		muted := log.New()
		muted.SetOutput(io.Discard)
		logger = muted
		return
	}
	logger = l
}
