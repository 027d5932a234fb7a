// Package appconfig holds the daemon-wide configuration: where manifests,
// permissions and settings live on disk, the uid range considered valid,
// and the settings debounce interval. It mirrors the shape of lazydocker's
// pkg/config/app_config.go (a NewAppConfig constructor plus a
// GetDefaultConfig for the stock values) but the paths here are system
// directories rather than a per-user XDG config dir, since sailjaild is a
// privileged per-host daemon (spec.md §6).
package appconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every path and tunable the daemon needs. All fields are
// plain and overridable so tests can point them at a temp directory.
type Config struct {
	// Name is the product name used to namespace the permissions and
	// settings directories (spec.md §6: "<sysconf>/<product>/...").
	Name string

	// Version, Commit, BuildDate mirror the teacher's AppConfig build
	// metadata fields, surfaced by --version.
	Version   string
	Commit    string
	BuildDate string

	// Verbose and Quiet map to the --verbose/--quiet CLI flags of spec.md
	// §6.
	Verbose bool
	Quiet   bool

	// Systemd mirrors the --systemd CLI flag: emit a ready notification
	// after bus acquisition.
	Systemd bool

	// ApplicationsDir is "<data>/applications" (spec.md §6).
	ApplicationsDir string
	// ManifestExt is the manifest file extension, e.g. "desktop".
	ManifestExt string

	// PermissionsDir is "<sysconf>/<product>/permissions" (spec.md §6).
	PermissionsDir string
	// PermissionExt is the permission file extension, e.g. "permission".
	PermissionExt string

	// SettingsDir is "<lib>/<product>/settings" (spec.md §6).
	SettingsDir string
	// SettingsExt is the settings file extension, e.g. "settings".
	SettingsExt string

	// MinUID and MaxUID bound the uids the users registry considers valid
	// (spec.md §4.5).
	MinUID int
	MaxUID int

	// PasswdPath is the password database path, overridable for tests.
	PasswdPath string

	// DebounceInterval is the settings-store write coalescing window,
	// spec.md §4.6 ("a single shared 1-second debounce timer").
	DebounceInterval time.Duration

	// BusName and ObjectPath are the transport surface of spec.md §6.
	BusName    string
	ObjectPath string
}

const (
	defaultName             = "sailjail"
	defaultManifestExt      = "desktop"
	defaultPermissionExt    = "permission"
	defaultSettingsExt      = "settings"
	defaultMinUID           = 100000
	defaultMaxUID           = 199999
	defaultDebounceInterval = time.Second
	defaultBusName          = "org.sailfishos.sailjaild"
	defaultObjectPath       = "/org/sailfishos/sailjaild"

	// OverrideFile is the optional on-disk override consulted by New,
	// mirroring the teacher's loadUserConfig (pkg/config/app_config.go):
	// the compiled-in defaults are the base, and any field the document
	// sets overwrites it. Unlike the teacher's config.yml, this file is
	// never auto-created — sailjaild is a privileged system daemon with
	// no interactive "edit your config" flow, so an absent file is simply
	// "use the defaults", not an error.
	OverrideFile = "/etc/sailjail/sailjaild.yaml"
)

// overrides is the subset of Config an operator may set in OverrideFile.
// Build metadata and the CLI-only flags (Verbose/Quiet/Systemd) are
// deliberately excluded: those are resolved from argv, not disk.
type overrides struct {
	Name             string        `yaml:"name,omitempty"`
	ApplicationsDir  string        `yaml:"applicationsDir,omitempty"`
	ManifestExt      string        `yaml:"manifestExt,omitempty"`
	PermissionsDir   string        `yaml:"permissionsDir,omitempty"`
	PermissionExt    string        `yaml:"permissionExt,omitempty"`
	SettingsDir      string        `yaml:"settingsDir,omitempty"`
	SettingsExt      string        `yaml:"settingsExt,omitempty"`
	MinUID           *int          `yaml:"minUid,omitempty"`
	MaxUID           *int          `yaml:"maxUid,omitempty"`
	PasswdPath       string        `yaml:"passwdPath,omitempty"`
	DebounceInterval time.Duration `yaml:"debounceInterval,omitempty"`
	BusName          string        `yaml:"busName,omitempty"`
	ObjectPath       string        `yaml:"objectPath,omitempty"`
}

// applyOverrides reads path, if present, and overwrites onto cfg whatever
// field the YAML document sets. A missing file is not an error. A
// malformed one is reported so the caller can log it, but cfg is left at
// its defaults either way — a bad override file must never stop the
// daemon from starting.
func applyOverrides(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ov overrides
	if err := yaml.Unmarshal(content, &ov); err != nil {
		return err
	}

	if ov.Name != "" {
		cfg.Name = ov.Name
	}
	if ov.ApplicationsDir != "" {
		cfg.ApplicationsDir = ov.ApplicationsDir
	}
	if ov.ManifestExt != "" {
		cfg.ManifestExt = ov.ManifestExt
	}
	if ov.PermissionsDir != "" {
		cfg.PermissionsDir = ov.PermissionsDir
	}
	if ov.PermissionExt != "" {
		cfg.PermissionExt = ov.PermissionExt
	}
	if ov.SettingsDir != "" {
		cfg.SettingsDir = ov.SettingsDir
	}
	if ov.SettingsExt != "" {
		cfg.SettingsExt = ov.SettingsExt
	}
	if ov.MinUID != nil {
		cfg.MinUID = *ov.MinUID
	}
	if ov.MaxUID != nil {
		cfg.MaxUID = *ov.MaxUID
	}
	if ov.PasswdPath != "" {
		cfg.PasswdPath = ov.PasswdPath
	}
	if ov.DebounceInterval != 0 {
		cfg.DebounceInterval = ov.DebounceInterval
	}
	if ov.BusName != "" {
		cfg.BusName = ov.BusName
	}
	if ov.ObjectPath != "" {
		cfg.ObjectPath = ov.ObjectPath
	}
	return nil
}

// GetDefaultConfig returns the stock configuration, matching the teacher's
// GetDefaultConfig in spirit: every field a new deployment needs, set to the
// value the host package installs by default.
func GetDefaultConfig() Config {
	return Config{
		Name:             defaultName,
		Version:          "unversioned",
		ApplicationsDir:  "/usr/share/applications",
		ManifestExt:      defaultManifestExt,
		PermissionsDir:   "/etc/" + defaultName + "/permissions",
		PermissionExt:    defaultPermissionExt,
		SettingsDir:      "/var/lib/" + defaultName + "/settings",
		SettingsExt:      defaultSettingsExt,
		MinUID:           defaultMinUID,
		MaxUID:           defaultMaxUID,
		PasswdPath:       "/etc/passwd",
		DebounceInterval: defaultDebounceInterval,
		BusName:          defaultBusName,
		ObjectPath:       defaultObjectPath,
	}
}

// New builds a Config from the default, overridden first by OverrideFile
// (if present) and then by whatever the caller (the daemon's CLI parsing,
// out of scope per spec.md §1) has already resolved from flags — flags
// always win over the on-disk override. A malformed override file is
// reported to the caller to log, but never prevents startup: cfg keeps
// its defaults for any field the file did not cleanly override.
func New(version, commit, buildDate string, verbose, quiet, systemd bool) (*Config, error) {
	cfg := GetDefaultConfig()
	overrideErr := applyOverrides(&cfg, OverrideFile)

	cfg.Version = version
	cfg.Commit = commit
	cfg.BuildDate = buildDate
	cfg.Verbose = verbose
	cfg.Quiet = quiet
	cfg.Systemd = systemd
	return &cfg, overrideErr
}
