// Command sailjail is the launcher client of spec.md §6 "CLI surface
// (launcher client)": it asks sailjaild for permission to run a sandboxed
// application, then execs it inside firejail.
//
// The flag surface is small and must coexist with an arbitrary passthrough
// argv for the sandboxed program itself, so flags are parsed with a manual
// loop grounded on original_source/daemon/client.c's getopt_long loop rather
// than github.com/integrii/flaggy (whose flag model assumes it owns the
// entire argument list — see DESIGN.md). cmd/sailjaild, whose flags never
// share the command line with passthrough args, uses flaggy.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/sailjaild/sailjaild/pkg/sandboxargs"
	"github.com/sailjaild/sailjaild/pkg/stringset"
)

const version = "unversioned"

func usage(progname string) {
	fmt.Fprintf(os.Stderr, `%[1]s -- launch a sandboxed application

Usage:
  %[1]s [-h|--help] [-V|--version] [-d|--desktop <id>] <exec> [args...]
`, progname)
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	progname := filepath.Base(args[0])

	var desktop string
	rest := args[1:]
	i := 0
	for ; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "-h" || arg == "--help":
			usage(progname)
			return 0
		case arg == "-V" || arg == "--version":
			fmt.Println(version)
			return 0
		case arg == "-d" || arg == "--desktop":
			if i+1 >= len(rest) {
				fmt.Fprintf(os.Stderr, "%s: --desktop requires a value\n", progname)
				return 1
			}
			i++
			desktop = rest[i]
		case strings.HasPrefix(arg, "--desktop="):
			desktop = strings.TrimPrefix(arg, "--desktop=")
		case arg == "--":
			i++
			goto done
		default:
			goto done
		}
	}
done:
	argv := rest[i:]

	if len(argv) < 1 {
		fmt.Fprintln(os.Stderr, "No application to launch given")
		usage(progname)
		return 1
	}

	binary := argv[0]
	if !filepath.IsAbs(binary) {
		fmt.Fprintf(os.Stderr, "%s: is not an absolute path\n", binary)
		return 1
	}
	if info, err := os.Stat(binary); err != nil || info.IsDir() {
		fmt.Fprintf(os.Stderr, "%s: is not executable: %v\n", binary, err)
		return 1
	}

	desktopPath := desktop
	if desktopPath == "" {
		desktopPath = desktopPathForBinary(binary)
	} else if !strings.Contains(desktopPath, "/") {
		// A bare desktop id, not a path to a desktop file.
		desktopPath = desktopPathForBinary(desktopPath)
	}
	if _, err := os.Stat(desktopPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: is not readable: %v\n", desktopPath, err)
		return 1
	}
	appID := strings.TrimSuffix(filepath.Base(desktopPath), filepath.Ext(desktopPath))

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to bus: %v\n", err)
		return 1
	}
	defer conn.Close()

	obj := conn.Object("org.sailfishos.sailjaild", "/org/sailfishos/sailjaild")
	uid := uint32(os.Getuid())

	var grantedSlice []string
	if call := obj.Call("org.sailfishos.sailjaild.Manager.Prompt", 0, uid, appID); call.Err != nil {
		fmt.Fprintf(os.Stderr, "requesting permission: %v\n", call.Err)
		return 1
	} else if err := call.Store(&grantedSlice); err != nil {
		fmt.Fprintf(os.Stderr, "decoding permission reply: %v\n", err)
		return 1
	}

	var appinfo map[string]dbus.Variant
	if call := obj.Call("org.sailfishos.sailjaild.Manager.GetAppInfo", 0, appID); call.Err != nil {
		fmt.Fprintf(os.Stderr, "fetching appinfo: %v\n", call.Err)
		return 1
	} else if err := call.Store(&appinfo); err != nil {
		fmt.Fprintf(os.Stderr, "decoding appinfo reply: %v\n", err)
		return 1
	}

	info := sandboxargs.AppInfo{
		Exec:         variantString(appinfo["Exec"]),
		Organization: variantString(appinfo["Organization"]),
		Application:  variantString(appinfo["Application"]),
		Service:      variantString(appinfo["Service"]),
	}
	if info.Exec == "unknown" || info.Exec == "" {
		fmt.Fprintln(os.Stderr, "Exec line not defined")
		return 1
	}

	if err := sandboxargs.ValidateArgv(info.Exec, argv[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Command line does not match template: %v\n", err)
		return 1
	}

	granted := stringset.New(grantedSlice...)
	sandboxArgv := sandboxargs.BuildFirejailArgv(desktopPath, info, granted, argv[1:])
	if len(sandboxArgv) == 0 {
		fmt.Fprintln(os.Stderr, "could not assemble sandbox argv")
		return 1
	}

	if err := syscall.Exec(sandboxArgv[0], sandboxArgv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: exec failed: %v\n", sandboxArgv[0], err)
		return 1
	}
	return 0
}

func desktopPathForBinary(binary string) string {
	return filepath.Join("/usr/share/applications", filepath.Base(binary)+".desktop")
}

// variantString decodes a string appinfo value, mapping the daemon's
// "unknown" rendering of an unset field back to the empty string.
func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	if s == "unknown" {
		return ""
	}
	return s
}
