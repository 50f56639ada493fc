package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funcbox/internal/runtime"
)

func TestToPosixPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drive letter path",
			in:   `C:\Users\X\AppData\Local\Temp\tmp1337`,
			want: "/c/Users/X/AppData/Local/Temp/tmp1337",
		},
		{
			name: "lowercase drive letter",
			in:   `d:\work\code`,
			want: "/d/work/code",
		},
		{
			name: "posix path untouched",
			in:   "/home/user/code",
			want: "/home/user/code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toPosixPath(tt.in))
		})
	}
}

func TestTranslateMountKey(t *testing.T) {
	assert.Equal(t, "/c/Users/X", translateMountKey(PathStyleWindows, `C:\Users\X`))
	assert.Equal(t, `C:\Users\X`, translateMountKey(PathStylePosix, `C:\Users\X`))
}

func TestMappedSymlinkVolumes_ResolvesTopLevelLinks(t *testing.T) {
	hostDir := t.TempDir()
	target := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(target, "index.js"), []byte("ok"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(hostDir, "node_modules")))
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "app.js"), []byte("ok"), 0o644))

	volumes := mappedSymlinkVolumes(hostDir, "/var/task", "ro,delegated")

	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]runtime.VolumeSpec{
		resolved: {Bind: "/var/task/node_modules", Mode: "ro,delegated"},
	}, volumes)
}

func TestMappedSymlinkVolumes_NoSymlinksReturnsEmpty(t *testing.T) {
	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "app.js"), []byte("ok"), 0o644))

	assert.Empty(t, mappedSymlinkVolumes(hostDir, "/var/task", "ro,delegated"))
}

func TestMappedSymlinkVolumes_MissingHostDirReturnsEmpty(t *testing.T) {
	assert.Empty(t, mappedSymlinkVolumes(filepath.Join(t.TempDir(), "missing"), "/var/task", "ro,delegated"))
}

func TestMappedSymlinkVolumes_SkipsDanglingLinks(t *testing.T) {
	hostDir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(hostDir, "gone"), filepath.Join(hostDir, "broken")))

	assert.Empty(t, mappedSymlinkVolumes(hostDir, "/var/task", "ro,delegated"))
}
