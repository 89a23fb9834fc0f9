package logger

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	once sync.Once
	le   *log.Entry
)

// AddLogger returns the shared logger entry, creating it on first use.
// The tool is quiet by default; SetLevel raises verbosity for
// --verbose/--debug.
func AddLogger() *log.Entry {
	once.Do(func() {
		le = log.NewEntry(newLogger())
	})

	return le
}

func newLogger() *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	})
	logger.SetLevel(log.WarnLevel)
	logger.Out = os.Stderr

	return logger
}

// SetLevel adjusts the shared logger's level.
func SetLevel(level log.Level) {
	AddLogger().Logger.SetLevel(level)
}
