// Package app bootstraps the daemon: it owns every long-lived component and
// wires them together, then runs the main loop until a shutdown signal
// arrives. Grounded on pkg/app/app.go's App struct and NewApp/Run/Close
// shape — there it owns Config/Log/OSCommand/DockerCommand/Gui; here it owns
// the same layered pieces generalised to sailjaild's domain.
package app

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/appconfig"
	"github.com/sailjaild/sailjaild/pkg/applications"
	"github.com/sailjaild/sailjaild/pkg/busservice"
	"github.com/sailjaild/sailjaild/pkg/control"
	"github.com/sailjaild/sailjaild/pkg/logging"
	"github.com/sailjaild/sailjaild/pkg/mainloop"
	"github.com/sailjaild/sailjaild/pkg/permissions"
	"github.com/sailjaild/sailjaild/pkg/prompter"
	"github.com/sailjaild/sailjaild/pkg/settings"
	"github.com/sailjaild/sailjaild/pkg/users"
)

// App owns every component sailjaild needs for its lifetime.
type App struct {
	Config *appconfig.Config
	Log    *logrus.Entry

	Applications *applications.Registry
	Permissions  *permissions.Registry
	Users        *users.Registry
	Settings     *settings.Store
	Control      *control.Control
	Prompter     *prompter.Prompter
	Service      *busservice.Service
	Loop         *mainloop.Loop

	conn *dbus.Conn
}

// NewApp constructs every component wired to cfg, but does not yet start
// watching the filesystem or acquire the bus name — call Run for that.
func NewApp(cfg *appconfig.Config) (*App, error) {
	a := &App{Config: cfg}
	a.Log = logging.New(cfg)

	a.Applications = applications.New(cfg.ApplicationsDir, cfg.ManifestExt)
	a.Permissions = permissions.New(cfg.PermissionsDir, cfg.PermissionExt)
	a.Users = users.New(cfg.PasswdPath, cfg.MinUID, cfg.MaxUID)
	a.Settings = settings.New(cfg.SettingsDir, cfg.SettingsExt, cfg.DebounceInterval, a.Log)
	a.Control = control.New(a.Applications, a.Permissions, a.Users, a.Settings, a.Log)

	a.Prompter = prompter.New(a.Control, a.defaultDispatch, a.Log)
	a.Service = busservice.New(a.Control, a.Prompter, a.Log)

	loop, err := mainloop.New(a.Control, a.Settings, a.Prompter, a.Log, cfg.ApplicationsDir, cfg.PermissionsDir, cfg.PasswdPath)
	if err != nil {
		return a, err
	}
	a.Loop = loop

	return a, nil
}

// defaultDispatch logs a prompt request; a real UI integration replaces this
// via Prompter.Dispatch before Run is called.
func (a *App) defaultDispatch(uid int, appID string) {
	a.Log.WithField("uid", uid).WithField("app", appID).Info("consent prompt requested")
}

// Run acquires the bus name, exports the service, starts the main loop, and
// blocks until SIGINT/SIGTERM or the loop exits on its own.
func (a *App) Run() error {
	// sailjaild is a privileged per-host daemon (spec.md §1), so it answers
	// on the system bus rather than a per-session one.
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	a.conn = conn

	reply, err := conn.RequestName(a.Config.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting bus name %s: %w", a.Config.BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already owned", a.Config.BusName)
	}

	if err := a.Service.Export(conn, dbus.ObjectPath(a.Config.ObjectPath)); err != nil {
		return fmt.Errorf("exporting service: %w", err)
	}

	if err := a.Loop.Start(); err != nil {
		return fmt.Errorf("starting main loop: %w", err)
	}

	if a.Config.Systemd {
		notifySystemdReady(a.Log)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return a.Close()
}

// Close tears down the main loop (which in turn flushes settings and fails
// in-flight prompts) and releases the bus connection.
func (a *App) Close() error {
	err := a.Loop.Close()
	if a.conn != nil {
		if releaseErr := a.conn.Close(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}
	return err
}

// notifySystemdReady sends the sd_notify READY=1 datagram over
// $NOTIFY_SOCKET (spec.md §6 "--systemd (emit ready notification after bus
// acquisition)"). No systemd client library appears anywhere in the example
// corpus, so this talks to the well-known unix datagram protocol directly
// rather than introducing an unrelated dependency (see DESIGN.md).
func notifySystemdReady(log *logrus.Entry) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("failed to connect to systemd notify socket")
		}
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1\n")); err != nil && log != nil {
		log.WithError(err).Warn("failed to send systemd ready notification")
	}
}
