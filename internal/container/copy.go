package container

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Copy retrieves source from inside the container and extracts it into the
// dest directory on the host. The tar stream is buffered to a temp file
// first so extraction never reads from a live engine connection. The
// container must currently exist.
func (c *Container) Copy(ctx context.Context, source, dest string) error {
	if !c.IsCreated(ctx) {
		return fmt.Errorf("container does not exist, cannot copy %s: %w", source, ErrNotCreated)
	}

	log.Debug("copying from container", "id", c.id, "source", source, "dest", dest)

	archive, err := c.rt.CopyFrom(ctx, c.id, source)
	if err != nil {
		return err
	}
	defer archive.Close()

	tmp, err := os.CreateTemp("", "funcbox-archive-")
	if err != nil {
		return fmt.Errorf("failed to buffer archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, archive); err != nil {
		return fmt.Errorf("failed to buffer archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return extractTar(tmp, dest)
}

// extractTar unpacks a tar stream into dest, refusing entries that would
// escape it.
func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := filepath.Join(dest, header.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
			return fmt.Errorf("archive entry %q escapes destination directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := header.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(target), linkTarget)
			}
			if !strings.HasPrefix(filepath.Clean(linkTarget), filepath.Clean(dest)+string(os.PathSeparator)) {
				return fmt.Errorf("archive link %q escapes destination directory", header.Name)
			}
			if err := os.Symlink(header.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		default:
			log.Debug("skipping unsupported archive entry", "name", header.Name, "type", header.Typeflag)
		}
	}
}
