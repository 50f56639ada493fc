package container

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/charmbracelet/log"

	"funcbox/internal/runtime"
)

// PathStyle identifies the path syntax of host-side mount keys.
type PathStyle int

// Supported host path styles.
const (
	// PathStyleAuto picks the style matching the current OS.
	PathStyleAuto PathStyle = iota
	PathStylePosix
	PathStyleWindows
)

func (s PathStyle) resolve() PathStyle {
	if s != PathStyleAuto {
		return s
	}
	if goruntime.GOOS == "windows" {
		return PathStyleWindows
	}
	return PathStylePosix
}

// toPosixPath rewrites a drive-letter path into the POSIX form the engine
// expects for bind mounts: `C:\Users\X\...` becomes `/c/Users/X/...`.
func toPosixPath(hostPath string) string {
	p := strings.ReplaceAll(hostPath, `\`, "/")
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		p = "/" + strings.ToLower(string(p[0])) + p[2:]
	}
	return p
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// translateMountKey converts a host-side mount key to engine syntax for the
// given path style. POSIX hosts pass through untouched.
func translateMountKey(style PathStyle, hostPath string) string {
	if style.resolve() == PathStyleWindows {
		return toPosixPath(hostPath)
	}
	return hostPath
}

// mappedSymlinkVolumes scans the top level of hostDir and returns one bind
// mount per symbolic link, mapping the link's resolved real path to
// <workingDir>/<link name>. Symlinks inside a bind-mounted directory would
// otherwise dangle in the container, since their targets live outside the
// mount. Regular entries are skipped. A missing hostDir yields an empty
// map: some callers mount directories the engine creates lazily.
func mappedSymlinkVolumes(hostDir, workingDir, mode string) map[string]runtime.VolumeSpec {
	volumes := make(map[string]runtime.VolumeSpec)

	entries, err := os.ReadDir(hostDir)
	if err != nil {
		return volumes
	}

	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink == 0 {
			continue
		}

		hostResolved, err := filepath.EvalSymlinks(filepath.Join(hostDir, entry.Name()))
		if err != nil {
			log.Debug("skipping unresolvable symlink", "name", entry.Name(), "error", err)
			continue
		}

		containerPath := path.Join(workingDir, entry.Name())
		log.Debug("mounting resolved symlink", "host_path", hostResolved, "container_path", containerPath)

		volumes[hostResolved] = runtime.VolumeSpec{Bind: containerPath, Mode: mode}
	}

	return volumes
}
