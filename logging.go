package main

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a run-scoped logger writing human readable lines to out.
// LOG_LEVEL=debug has the same effect as the --debug flag.
func NewLogger(out io.Writer, debug bool) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	log.SetLevel(logrus.InfoLevel)
	if debug || strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		log.SetLevel(logrus.DebugLevel)
	}

	return log.WithField("run_id", uuid.NewString()[:8])
}

// discardLogger is used by tests and by components constructed without a logger
func discardLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
