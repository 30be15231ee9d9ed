package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohesix/cohesix-go/pkg/paths"
)

func testLimits() paths.Limits {
	return paths.Limits{MaxLen: 96, MaxDepth: 8}
}

func newTestFS(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir(), testLimits())
	require.NoError(t, err)
	return fs
}

func TestFilesystemAppendThenRead(t *testing.T) {
	fs := newTestFS(t)

	n, err := fs.WriteAppend("/gpu/GPU-0/lease", []byte("one\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = fs.WriteAppend("/gpu/GPU-0/lease", []byte("two\n"))
	require.NoError(t, err)

	payload, err := fs.ReadFile("/gpu/GPU-0/lease", 1024)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(payload))
}

func TestFilesystemReadEnforcesMaxBytes(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.WriteAppend("/gpu/GPU-0/status", []byte("0123456789"))
	require.NoError(t, err)

	payload, err := fs.ReadFile("/gpu/GPU-0/status", 10)
	require.NoError(t, err)
	assert.Len(t, payload, 10)

	_, err = fs.ReadFile("/gpu/GPU-0/status", 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max bytes 9")
}

func TestFilesystemRejectsEscapes(t *testing.T) {
	fs := newTestFS(t)
	for _, path := range []string{"/../etc/passwd", "/gpu/../../etc", "/gpu/./info"} {
		_, err := fs.ReadFile(path, 16)
		require.Error(t, err, path)
	}
	_, err := fs.ReadFile("relative/path", 16)
	require.Error(t, err)
}

func TestFilesystemListSortsAndRequiresDirectory(t *testing.T) {
	fs := newTestFS(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := fs.WriteAppend("/gpu/"+name+"/info", []byte("{}"))
		require.NoError(t, err)
	}
	// Hidden host files stay invisible to the namespace.
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), "gpu", ".hidden"), nil, 0o644))

	names, err := fs.List("/gpu")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)

	_, err = fs.List("/gpu/alpha/info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestFilesystemReadMissingFile(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.ReadFile("/gpu/GPU-9/info", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a file")
}
