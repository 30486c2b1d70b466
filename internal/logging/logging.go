// Package logging builds the process logger.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger on stdout at the given level. Unknown levels
// fall back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.Level = logrus.InfoLevel
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.Level = lvl
	}
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	return log
}
