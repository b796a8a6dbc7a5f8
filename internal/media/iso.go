// Package media builds and inspects ISO 9660 images used to move files into
// guests that have no shared-folder support.
package media

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
)

const defaultLabel = "VIRTMCP"

// Entry is one file or directory inside an image.
type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// Image summarises an inspected ISO.
type Image struct {
	Path    string  `json:"path"`
	Label   string  `json:"label"`
	Entries []Entry `json:"entries"`
}

// BuildISO writes the contents of sourceDir to imagePath. A partially
// written image is removed on failure.
func BuildISO(sourceDir, imagePath, label string) error {
	srcAbs, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("resolve source directory %q: %w", sourceDir, err)
	}
	info, err := os.Stat(srcAbs)
	if err != nil {
		return fmt.Errorf("stat source directory %q: %w", srcAbs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %q is not a directory", srcAbs)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("create iso writer: %w", err)
	}
	defer writer.Cleanup()

	if err := writer.AddLocalDirectory(srcAbs, "/"); err != nil {
		return fmt.Errorf("stage directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("ensure image directory: %w", err)
	}
	out, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := writer.WriteTo(out, SanitizeLabel(label)); err != nil {
		_ = out.Close()
		_ = os.Remove(imagePath)
		return fmt.Errorf("write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(imagePath)
		return fmt.Errorf("finalize iso: %w", err)
	}
	return nil
}

// SanitizeLabel upper-cases label and replaces anything outside A-Z, 0-9
// with underscores, truncated to 32 characters.
func SanitizeLabel(parts ...string) string {
	const maxLen = 32

	label := strings.Join(parts, "_")
	var b strings.Builder
	for _, r := range label {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if strings.Trim(b.String(), "_") == "" {
		return defaultLabel
	}
	return b.String()
}

// ListISO walks the image at imagePath depth-first.
func ListISO(imagePath string) (Image, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return Image{}, fmt.Errorf("open iso file: %w", err)
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return Image{}, fmt.Errorf("open iso image: %w", err)
	}
	label, err := img.Label()
	if err != nil {
		return Image{}, fmt.Errorf("read volume label: %w", err)
	}
	root, err := img.RootDir()
	if err != nil {
		return Image{}, fmt.Errorf("read root directory: %w", err)
	}

	result := Image{Path: imagePath, Label: strings.TrimSpace(label), Entries: []Entry{}}
	if err := walk(root, "", &result.Entries); err != nil {
		return Image{}, err
	}
	return result, nil
}

func walk(dir *iso9660.File, prefix string, out *[]Entry) error {
	if dir == nil || !dir.IsDir() {
		return errors.New("not a directory")
	}
	children, err := dir.GetChildren()
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix+"/", err)
	}
	for _, child := range children {
		switch child.Name() {
		case "", "\x00", "\x01", ".", "..":
			continue
		}
		p := path.Join("/", prefix, child.Name())
		*out = append(*out, Entry{Path: p, Size: child.Size(), Dir: child.IsDir()})
		if child.IsDir() {
			if err := walk(child, p, out); err != nil {
				return err
			}
		}
	}
	return nil
}
