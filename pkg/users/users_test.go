package users

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writePasswd(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "passwd")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRescanFiltersByUIDRange(t *testing.T) {
	dir := t.TempDir()
	path := writePasswd(t, dir, `root:x:0:0::/root:/bin/sh
nemo:x:100000:100000::/home/nemo:/bin/sh
guest:x:100001:100001::/home/guest:/bin/sh
daemon:x:1:1::/:/bin/false
`)

	reg := New(path, 100000, 199999)
	diff := reg.Rescan()

	assert.True(t, reg.Valid(100000))
	assert.True(t, reg.Valid(100001))
	assert.False(t, reg.Valid(0))
	assert.False(t, reg.Valid(1))
	assert.True(t, diff.Contains("100000"))
	assert.True(t, diff.Contains("100001"))
	assert.False(t, diff.Contains("0"))
}

func TestRescanDetectsRemovedUser(t *testing.T) {
	dir := t.TempDir()
	path := writePasswd(t, dir, `nemo:x:100000:100000::/home/nemo:/bin/sh
`)

	reg := New(path, 100000, 199999)
	reg.Rescan()
	assert.True(t, reg.Valid(100000))

	writePasswd(t, dir, "")
	diff := reg.Rescan()

	assert.False(t, reg.Valid(100000))
	assert.True(t, diff.Contains("100000"))
}

func TestRescanIgnoresMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := writePasswd(t, dir, `# a comment
malformed-line
nemo:x:100000
nemo2:x:notanumber:100000::/home/nemo2:/bin/sh
`)

	reg := New(path, 100000, 199999)
	reg.Rescan()

	assert.Equal(t, 0, len(reg.All()))
}

func TestRescanMissingFileYieldsNoUsers(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "nonexistent"), 100000, 199999)
	diff := reg.Rescan()

	assert.Equal(t, 0, diff.Len())
	assert.Equal(t, 0, len(reg.All()))
}
