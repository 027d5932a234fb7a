package logging

import (
	"io"
	"testing"

	"github.com/sailjaild/sailjaild/pkg/appconfig"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	cfg := appconfig.GetDefaultConfig()

	cfg.Quiet, cfg.Verbose = true, false
	quiet := New(&cfg)
	assert.Equal(t, logrus.ErrorLevel, quiet.Logger.GetLevel())
	assert.Equal(t, io.Discard, quiet.Logger.Out)

	cfg.Quiet, cfg.Verbose = false, true
	verbose := New(&cfg)
	assert.Equal(t, logrus.DebugLevel, verbose.Logger.GetLevel())

	cfg.Quiet, cfg.Verbose = false, false
	normal := New(&cfg)
	assert.Equal(t, logrus.InfoLevel, normal.Logger.GetLevel())
}

func TestNewCarriesBuildFields(t *testing.T) {
	cfg := appconfig.GetDefaultConfig()
	cfg.Version = "1.0.0"
	cfg.Commit = "abc123"
	cfg.BuildDate = "2026-07-31"

	entry := New(&cfg)
	assert.Equal(t, "1.0.0", entry.Data["version"])
	assert.Equal(t, "abc123", entry.Data["commit"])
	assert.Equal(t, "2026-07-31", entry.Data["buildDate"])
}
