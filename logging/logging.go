// Package logging wires up the structured logger the rest of the module
// uses, following the prefixed-text logrus setup the teacher's CLI tools
// share.
package logging

import (
	"flag"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

var levelFlag *int

// InitFlags registers the -loglevel flag with the default flag.CommandLine
// set. Call before flag.Parse.
func InitFlags() {
	levelFlag = flag.Int("loglevel", int(logrus.InfoLevel), "log level: 0=panic .. 6=trace")
}

// New builds a *logrus.Entry for component, using the level from -loglevel
// if InitFlags was called and flags have been parsed, or fall back
// otherwise.
func New(component string, fallback logrus.Level) *logrus.Entry {
	logrus.ErrorKey = "$error"
	logger := logrus.New()

	level := fallback
	if levelFlag != nil && flag.Parsed() {
		level = logrus.Level(*levelFlag)
	}
	logger.SetLevel(level)

	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	formatter.PrefixPadding = 20
	formatter.SpacePadding = 50
	logger.SetFormatter(formatter)

	return logger.WithField("component", component)
}
