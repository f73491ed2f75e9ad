// Package logruslog adapts github.com/sirupsen/logrus to the engine's
// Logger interface.
package logruslog

import (
	"github.com/sirupsen/logrus"

	"attrcache/pkg/logging"
)

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}

func (l Logger) Info(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}

func (l Logger) Warn(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}

func (l Logger) Error(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
