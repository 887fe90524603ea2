package spdkio

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

func init() {
	logger.Store(logrus.New())
}

// SetLogger replaces the package logger. A nil logger restores a fresh
// default logrus logger.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = logrus.New()
	}
	logger.Store(l)
}

// Logger returns the package logger.
func Logger() *logrus.Logger {
	return logger.Load()
}

func (t *Thread) log() *logrus.Entry {
	return Logger().WithFields(logrus.Fields{
		"thread":    t.mbox.name,
		"thread_id": t.mbox.id,
		"carrier":   t.owner.String(),
		"tid":       t.tid,
	})
}
