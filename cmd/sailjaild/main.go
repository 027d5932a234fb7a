package main

import (
	"fmt"
	"log"
	"runtime"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/sailjaild/sailjaild/pkg/app"
	"github.com/sailjaild/sailjaild/pkg/appconfig"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	verboseFlag bool
	quietFlag   bool
	systemdFlag bool
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("sailjaild")
	flaggy.SetDescription("Mediates launch of sandboxed desktop applications")
	flaggy.Bool(&verboseFlag, "v", "verbose", "Enable verbose logging")
	flaggy.Bool(&quietFlag, "q", "quiet", "Suppress all logging output")
	flaggy.Bool(&systemdFlag, "", "systemd", "Emit a systemd ready notification after bus acquisition")
	flaggy.SetVersion(info)
	flaggy.Parse()

	cfg, cfgErr := appconfig.New(version, commit, date, verboseFlag, quietFlag, systemdFlag)
	if cfgErr != nil {
		log.Printf("sailjaild: ignoring malformed %s: %s", appconfig.OverrideFile, cfgErr.Error())
	}

	a, err := app.NewApp(cfg)
	if err == nil {
		err = a.Run()
	}

	if err != nil {
		newErr := errors.Wrap(err, 0)
		if a != nil && a.Log != nil {
			a.Log.Error(newErr.ErrorStack())
		}
		log.Fatalf("sailjaild exiting: %s", err.Error())
	}
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, found := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); found {
		commit = revision.Value
		if len(commit) > 7 {
			version = commit[:7]
		} else {
			version = commit
		}
	}
	if ts, found := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); found {
		date = ts.Value
	}
}
