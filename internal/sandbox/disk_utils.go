package sandbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cochaviz/virtmcp/internal/media"
)

// prepareShareDisk creates a read-only ISO image from sourceDir. The
// directory is mirrored into the run directory first so later changes to
// the source do not race the image writer.
func prepareShareDisk(runDir, sourceDir, volumeLabel string) (string, error) {
	srcAbs, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", fmt.Errorf("resolve share directory %q: %w", sourceDir, err)
	}
	info, err := os.Stat(srcAbs)
	if err != nil {
		return "", fmt.Errorf("stat share directory %q: %w", srcAbs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("share path %q is not a directory", srcAbs)
	}

	stagingDir := filepath.Join(runDir, "share_data")
	if err := os.RemoveAll(stagingDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("clear share staging directory: %w", err)
	}
	if err := copyDirectoryContents(srcAbs, stagingDir); err != nil {
		return "", fmt.Errorf("copy share directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	imagePath := filepath.Join(runDir, "share.iso")
	if err := media.BuildISO(stagingDir, imagePath, volumeLabel); err != nil {
		return "", fmt.Errorf("create share disk image: %w", err)
	}
	return imagePath, nil
}

func copyDirectoryContents(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(dstDir, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		if mode&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks are not supported in share disks (%s)", path)
		}
		if d.IsDir() {
			return os.MkdirAll(targetPath, mode.Perm()|0o700)
		}
		if !mode.IsRegular() {
			return fmt.Errorf("unsupported file type %s in %s", mode, path)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return err
		}
		return copyFile(path, targetPath, mode.Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
