// Package logging builds the daemon's single logrus entry, the way
// lazydocker's pkg/log/log.go builds one: a JSON-formatted logger carrying
// build metadata as fields, level set from the --verbose/--quiet flags
// rather than package state. The caller threads the returned *logrus.Entry
// through construction explicitly (spec.md DESIGN NOTES, "Global state").
package logging

import (
	"io"
	"os"

	"github.com/sailjaild/sailjaild/pkg/appconfig"
	"github.com/sirupsen/logrus"
)

// New returns a logger configured from cfg's Verbose/Quiet flags.
func New(cfg *appconfig.Config) *logrus.Entry {
	log := logrus.New()
	log.Formatter = &logrus.JSONFormatter{}

	switch {
	case cfg.Quiet:
		log.Out = io.Discard
		log.SetLevel(logrus.ErrorLevel)
	case cfg.Verbose:
		log.Out = os.Stderr
		log.SetLevel(logrus.DebugLevel)
	default:
		log.Out = os.Stderr
		log.SetLevel(logrus.InfoLevel)
	}

	return log.WithFields(logrus.Fields{
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}
