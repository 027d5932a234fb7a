package mainloop

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
	"github.com/sailjaild/sailjaild/pkg/prompter"
	"github.com/sailjaild/sailjaild/pkg/settings"
	"github.com/sailjaild/sailjaild/pkg/users"
)

func newTestLoop(t *testing.T) (*Loop, string, string, string) {
	t.Helper()
	appsDir := t.TempDir()
	permsDir := t.TempDir()
	passwdDir := t.TempDir()
	passwd := filepath.Join(passwdDir, "passwd")
	assert.NoError(t, os.WriteFile(passwd, []byte("nemo:x:100000:100000::/home/nemo:/bin/sh\n"), 0o644))

	apps := applications.New(appsDir, "desktop")
	perms := permissions.New(permsDir, "permission")
	usersReg := users.New(passwd, 100000, 199999)
	store := settings.New(t.TempDir(), "settings", time.Hour, nil)

	log := logrus.NewEntry(logrus.New())
	ctrl := control.New(apps, perms, usersReg, store, log)
	p := prompter.New(ctrl, func(uid int, appID string) {}, log)

	loop, err := New(ctrl, store, p, log, appsDir, permsDir, passwd)
	assert.NoError(t, err)
	return loop, appsDir, permsDir, passwd
}

func TestStartBootstrapsRegistries(t *testing.T) {
	loop, appsDir, _, _ := newTestLoop(t)
	assert.NoError(t, os.WriteFile(filepath.Join(appsDir, "one.desktop"), []byte(`[Desktop Entry]
Name=One
Type=Application
Exec=/usr/bin/one
`), 0o644))

	assert.NoError(t, loop.Start())
	defer loop.Close()

	rec, ok := loop.Control.LookupApplication("one")
	assert.True(t, ok)
	assert.Equal(t, applications.StateValid, rec.State)
	assert.True(t, loop.Control.ValidUID(100000))
}

func TestDispatchRecomputesOnManifestWrite(t *testing.T) {
	loop, appsDir, _, _ := newTestLoop(t)
	assert.NoError(t, loop.Start())
	defer loop.Close()

	assert.NoError(t, os.WriteFile(filepath.Join(appsDir, "two.desktop"), []byte(`[Desktop Entry]
Name=Two
Type=Application
Exec=/usr/bin/two
`), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := loop.Control.LookupApplication("two")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartLoadsPersistedSettingsForValidApp(t *testing.T) {
	// Regression for spec.md §4.6 "Load policy" / scenario S4: a settings
	// group must survive Start's bootstrap even though the users pass that
	// loads it can only run after the manifests pass has made the
	// application valid.
	loop, appsDir, permsDir, _ := newTestLoop(t)

	assert.NoError(t, os.WriteFile(filepath.Join(appsDir, "one.desktop"), []byte(`[Desktop Entry]
Name=One
Type=Application
Exec=/usr/bin/one

[X-Sailjail]
Permissions=Internet
`), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(permsDir, "Internet.permission"), []byte(""), 0o644))

	settingsPath := filepath.Join(loop.Settings.Dir, "user-100000.settings")
	assert.NoError(t, os.WriteFile(settingsPath, []byte("[one]\nAllowed = 1\nAgreed = 1\nGranted = Internet;\n"), 0o644))

	assert.NoError(t, loop.Start())
	defer loop.Close()

	granted := loop.Control.EffectiveGrant(100000, "one")
	assert.True(t, granted.Contains("Internet"))
}

func TestCloseShutsDownPrompterAndSettings(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)
	assert.NoError(t, loop.Start())

	resultCh := loop.Prompter.Request(100000, "ghost")
	assert.NoError(t, loop.Close())

	res := <-resultCh
	assert.Error(t, res.Err)
}
