// Package sandboxargs assembles the firejail-wrapped argv the launcher
// client execs (spec.md §6 "CLI surface (launcher client)" and SPEC_FULL.md
// supplemented features). Grounded directly on original_source/daemon/
// client.c's client_exec: a stringset of firejail flags (whitelist/mkdir/
// profile/dbus-user.own) built from the appinfo and the granted permission
// set, followed by the real program argv. pkg/commands/os.go's
// ExecutableFromString supplies the Go idiom for template-to-argv assembly;
// no subprocess is spawned by this package itself — the sandbox program
// (firejail) is what ultimately execs, out of scope per spec.md §1.
package sandboxargs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/OpenPeeDeeP/xdg"

	"github.com/sailjaild/sailjaild/pkg/stringset"
)

const firejailPath = "/usr/bin/firejail"

// Paths are the HOME-relative sandbox directories the client synthesises
// for the application, per spec.md §6 "Environment": "HOME is referenced
// only by the launcher client to synthesise sandbox paths; the daemon does
// not consume it."
type Paths struct {
	Home       string
	ConfigHome string
	DataHome   string
	CacheHome  string
}

// ResolvePaths computes the sandbox paths for appID, using the same
// vendor/project XDG layout pkg/config/app_config.go computes for its own
// config directory. Home is set to home as given; the XDG directories are
// resolved by xdg.New from the process environment and are not derived
// from home.
func ResolvePaths(home, appID string) Paths {
	dirs := xdg.New("sailjail", appID)
	return Paths{
		Home:       home,
		ConfigHome: dirs.ConfigHome(),
		DataHome:   dirs.DataHome(),
		CacheHome:  dirs.CacheHome(),
	}
}

// AppInfo is the subset of a queried appinfo the firejail argv builder
// needs, mirroring client.c's appinfo_* accessors.
type AppInfo struct {
	Exec         string
	Organization string
	Application  string
	Service      string
}

// splitExecTemplate tokenises a manifest Exec value on whitespace. Desktop
// entry Exec fields support quoting and %-field codes; neither is
// implemented here (see ValidateArgv).
func splitExecTemplate(exec string) []string {
	fields := strings.Fields(exec)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// permissionsDir/profilesDir mirror the on-disk layout client.c's
// path_from_permission_name/path_from_profile_name read from.
const (
	permissionsDir = "/usr/share/sailjail/permissions"
	profilesDir    = "/usr/share/sailjail/profiles"
)

// BuildFirejailArgv assembles the full argv passed to execve: firejail
// flags derived from info and granted, followed by the Exec template's own
// tokens and the caller-supplied extra arguments. desktopPath is the
// manifest file path (client.c whitelists it directly so the sandboxed
// process can still read its own launcher metadata).
func BuildFirejailArgv(desktopPath string, info AppInfo, granted *stringset.Set, extraArgs []string) []string {
	execTokens := splitExecTemplate(info.Exec)
	if len(execTokens) == 0 {
		return nil
	}
	binary := filepath.Base(execTokens[0])

	flags := stringset.New()
	flags.Add(firejailPath)
	flags.Add(fmt.Sprintf("--private-bin=%s", binary))
	flags.Add(fmt.Sprintf("--whitelist=/usr/share/%s", binary))
	flags.Add(fmt.Sprintf("--whitelist=%s", desktopPath))

	flags.Add(fmt.Sprintf("--whitelist=${HOME}/.local/share/%s", binary))

	flags.Add(fmt.Sprintf("--mkdir=${HOME}/.cache/%s/%s", info.Organization, info.Application))
	flags.Add(fmt.Sprintf("--whitelist=${HOME}/.cache/%s/%s", info.Organization, info.Application))

	flags.Add(fmt.Sprintf("--mkdir=${HOME}/.local/share/%s/%s", info.Organization, info.Application))
	flags.Add(fmt.Sprintf("--whitelist=${HOME}/.local/share/%s/%s", info.Organization, info.Application))

	flags.Add(fmt.Sprintf("--mkdir=${HOME}/.config/%s/%s", info.Organization, info.Application))
	flags.Add(fmt.Sprintf("--whitelist=${HOME}/.config/%s/%s", info.Organization, info.Application))

	flags.Add(fmt.Sprintf("--dbus-user.own=%s.%s", info.Organization, info.Application))
	if info.Service != "" {
		flags.Add(fmt.Sprintf("--dbus-user.own=%s", info.Service))
	}

	if profile := filepath.Join(profilesDir, binary+".profile"); pathReadable(profile) {
		flags.Add(fmt.Sprintf("--profile=%s", profile))
	}
	for _, perm := range append(granted.Slice(), "Base") {
		if permPath := filepath.Join(permissionsDir, perm+".permission"); pathReadable(permPath) {
			flags.Add(fmt.Sprintf("--profile=%s", permPath))
		}
	}

	flags.Add("--")

	argv := flags.Slice()
	argv = append(argv, execTokens...)
	argv = append(argv, extraArgs...)
	return argv
}

// pathReadable is overridable by tests; defaults to a real stat-based check
// defined in stat.go.
var pathReadable = statReadable

// ValidateArgv is the stubbed argv-vs-exec-template check of spec.md DESIGN
// NOTES "Open question — argument validation": the original's check is
// stubbed to always accept, and we specify the stub rather than guess at
// the real token-syntax validation against Exec. Always returns nil.
func ValidateArgv(execTemplate string, argv []string) error {
	return nil
}
