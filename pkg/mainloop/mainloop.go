// Package mainloop wires fsnotify watches to Control recomputations and
// owns daemon shutdown (spec.md §5). Grounded on
// gravwell-gravwell/filewatch/filewatch.go's WatchManager: an
// fsnotify.Watcher wrapped with a context/cancel pair and a dispatch
// goroutine that routes filesystem events to domain-specific handlers.
package mainloop

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/sailjaild/sailjaild/pkg/control"
	"github.com/sailjaild/sailjaild/pkg/prompter"
	"github.com/sailjaild/sailjaild/pkg/settings"
)

// Loop owns the single event-loop goroutine of spec.md §5 "Scheduling
// model": one goroutine services file-watch callbacks, timer callbacks
// (indirectly, via the settings store's own debounce goroutine invoking
// Control only through already-synchronized entry points) and transport I/O.
type Loop struct {
	Control  *control.Control
	Settings *settings.Store
	Prompter *prompter.Prompter
	Log      *logrus.Entry

	watcher *fsnotify.Watcher

	appsDir, permsDir, passwdDir string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Loop watching the three directories that feed Control's
// registries. passwdPath's containing directory is watched (not the file
// itself) since editors commonly replace /etc/passwd via rename rather than
// in-place write, which a direct file watch would miss.
func New(ctrl *control.Control, store *settings.Store, p *prompter.Prompter, log *logrus.Entry, appsDir, permsDir, passwdPath string) (*Loop, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		Control:  ctrl,
		Settings: store,
		Prompter: p,
		Log:      log,
		watcher:  watcher,
		appsDir:  appsDir,
		permsDir: permsDir,
		passwdDir: filepath.Dir(passwdPath),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	return l, nil
}

// Start arms the watches, performs the initial full resync of every
// registry, and launches the dispatch goroutine.
func (l *Loop) Start() error {
	for _, dir := range []string{l.appsDir, l.permsDir, l.passwdDir} {
		if err := l.watcher.Add(dir); err != nil {
			return err
		}
	}

	// Bootstrap: populate every registry before watching for changes, so
	// the first Recompute call for each source has a non-empty baseline
	// instead of diffing against nothing. Manifests must run before Users:
	// OnUsersChanged loads each newly-valid uid's settings through
	// ValidApp, which consults the applications registry (spec.md §4.6
	// "Load policy") — if that registry is still empty, every persisted
	// per-app settings group is dropped on every restart.
	l.Control.Recompute(control.SourcePermissions)
	l.Control.Recompute(control.SourceManifests)
	l.Control.Recompute(control.SourceUsers)

	go l.run()
	return nil
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.dispatch(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			if l.Log != nil {
				l.Log.WithError(err).Warn("fsnotify watcher error")
			}
		}
	}
}

func (l *Loop) dispatch(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)
	var src control.Source
	switch dir {
	case l.appsDir:
		src = control.SourceManifests
	case l.permsDir:
		src = control.SourcePermissions
	case l.passwdDir:
		src = control.SourceUsers
	default:
		return
	}

	// Registry passes are non-suspending (spec.md §5 "Suspension points"):
	// Recompute runs to completion, including the notify pass, before this
	// goroutine returns to select and observes the next event.
	l.Control.Recompute(src)
}

// Close cancels the watch goroutine, flushes the settings store, and fails
// every in-flight prompt (spec.md §5 "Cancellation and timeouts").
func (l *Loop) Close() error {
	l.cancel()
	err := l.watcher.Close()
	<-l.done
	l.Prompter.Shutdown()
	l.Settings.Close()
	return err
}
