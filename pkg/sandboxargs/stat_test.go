package sandboxargs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists")
	assert.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	assert.True(t, statReadable(path))
	assert.False(t, statReadable(filepath.Join(dir, "missing")))
}
