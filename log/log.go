// Package log provides loggers for demix components.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv is the environment variable which enables debug logging.
const DebugEnv = "DEMIX_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Level is parsed with
// logrus.ParseLevel, empty or invalid level falls back to info, or to
// debug if DEMIX_DEBUG is set.
func GetLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	if lvl, err := logrus.ParseLevel(level); err == nil && level != "" {
		l.SetLevel(lvl)
	}
	return l
}

// Component returns an entry tagged with component name and id.
func Component(l logrus.FieldLogger, name, id string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"component": name,
		"id":        id,
	})
}
