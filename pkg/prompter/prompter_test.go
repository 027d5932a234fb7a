package prompter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/sailjaild/sailjaild/pkg/applications"
	"github.com/sailjaild/sailjaild/pkg/control"
	"github.com/sailjaild/sailjaild/pkg/permissions"
	"github.com/sailjaild/sailjaild/pkg/settings"
	"github.com/sailjaild/sailjaild/pkg/users"
)

func newTestControl(t *testing.T) *control.Control {
	t.Helper()
	appsDir := t.TempDir()
	permsDir := t.TempDir()
	passwd := filepath.Join(t.TempDir(), "passwd")
	assert.NoError(t, os.WriteFile(passwd, []byte("nemo:x:100000:100000::/home/nemo:/bin/sh\n"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(appsDir, "one.desktop"), []byte(`[Desktop Entry]
Name=One
Type=Application
Exec=/usr/bin/one

[X-Sailjail]
Permissions=Internet;Contacts
`), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(permsDir, "Internet.permission"), []byte(""), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(permsDir, "Contacts.permission"), []byte(""), 0o644))

	apps := applications.New(appsDir, "desktop")
	perms := permissions.New(permsDir, "permission")
	usersReg := users.New(passwd, 100000, 199999)
	store := settings.New(t.TempDir(), "settings", time.Hour, nil)
	t.Cleanup(store.Close)

	c := control.New(apps, perms, usersReg, store, logrus.NewEntry(logrus.New()))
	c.Recompute(control.SourceManifests)
	c.Recompute(control.SourcePermissions)
	c.Recompute(control.SourceUsers)
	return c
}

func TestRequestDispatchesImmediatelyWhenIdle(t *testing.T) {
	ctrl := newTestControl(t)
	dispatched := make(chan struct{}, 1)
	p := New(ctrl, func(uid int, appID string) { dispatched <- struct{}{} }, nil)

	p.Request(100000, "one")

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("dispatch was not called")
	}
}

func TestRequestGrantedMutatesSettings(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)

	resultCh := p.Request(100000, "one")
	assert.NoError(t, p.Resolve(100000, "one", Granted))

	res := <-resultCh
	assert.NoError(t, res.Err)
	assert.Equal(t, Granted, res.Outcome)

	granted := ctrl.EffectiveGrant(100000, "one")
	assert.True(t, granted.Contains("Internet"))
	assert.True(t, granted.Contains("Contacts"))
	assert.Equal(t, settings.AllowedAlways, ctrl.Allowed(100000, "one"))
}

func TestRequestDeniedClearsGrantedAndSetsNever(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)

	resultCh := p.Request(100000, "one")
	assert.NoError(t, p.Resolve(100000, "one", Denied))

	res := <-resultCh
	assert.Equal(t, Denied, res.Outcome)
	assert.Equal(t, settings.AllowedNever, ctrl.Allowed(100000, "one"))
	assert.Equal(t, 0, ctrl.EffectiveGrant(100000, "one").Len())
}

func TestRequestDeferredAppliesNoMutation(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)

	resultCh := p.Request(100000, "one")
	assert.NoError(t, p.Resolve(100000, "one", Deferred))

	res := <-resultCh
	assert.Equal(t, Deferred, res.Outcome)
	assert.Equal(t, settings.AllowedUnset, ctrl.Allowed(100000, "one"))
}

func TestSecondRequestJoinsInFlightOne(t *testing.T) {
	ctrl := newTestControl(t)
	dispatchCount := 0
	block := make(chan struct{})
	p := New(ctrl, func(uid int, appID string) {
		dispatchCount++
		<-block
	}, nil)

	first := p.Request(100000, "one")
	time.Sleep(20 * time.Millisecond) // let the first dispatch start
	second := p.Request(100000, "one")
	close(block)

	assert.NoError(t, p.Resolve(100000, "one", Granted))

	r1 := <-first
	r2 := <-second
	assert.Equal(t, Granted, r1.Outcome)
	assert.Equal(t, Granted, r2.Outcome)
	assert.Equal(t, 1, dispatchCount)
}

func TestDistinctAppQueuesBehindActive(t *testing.T) {
	ctrl := newTestControl(t)
	order := make(chan string, 2)
	p := New(ctrl, func(uid int, appID string) { order <- appID }, nil)

	p.Request(100000, "one")
	p.Request(100000, "two")

	assert.Equal(t, "one", <-order)
	assert.NoError(t, p.Resolve(100000, "one", Deferred))
	assert.Equal(t, "two", <-order)
}

func TestResolveWithoutActiveRequestFails(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)

	err := p.Resolve(100000, "ghost", Granted)
	assert.Error(t, err)
}

func TestShutdownFailsWaitersWithoutMutatingSettings(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)

	resultCh := p.Request(100000, "one")
	p.Shutdown()

	res := <-resultCh
	assert.Error(t, res.Err)
	assert.Equal(t, settings.AllowedUnset, ctrl.Allowed(100000, "one"))
}

func TestRequestAfterShutdownFailsImmediately(t *testing.T) {
	ctrl := newTestControl(t)
	p := New(ctrl, func(uid int, appID string) {}, nil)
	p.Shutdown()

	res := <-p.Request(100000, "one")
	assert.Error(t, res.Err)
}
