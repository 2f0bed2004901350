// Package logrus adapts a logrus entry to rescache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l; nil uses the logrus standard logger.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f rescache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f rescache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f rescache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f rescache.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus' error key.
func (l Logger) with(f rescache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
