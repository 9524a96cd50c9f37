package install

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/depforge/depforge/pkg/errors"
)

// dirChecksum computes a deterministic sha256 over an installed tree:
// relative paths in sorted order, each followed by a NUL separator and
// the file contents (for symlinks, the link target). Two trees with the
// same files in the same layout always hash the same.
func dirChecksum(dir string) (string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "walk %s", dir)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		h.Write([]byte(rel))
		h.Write([]byte{0})

		full := filepath.Join(dir, filepath.FromSlash(rel))
		info, err := os.Lstat(full)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "stat %s", full)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(full)
			if err != nil {
				return "", errors.Wrap(errors.ErrCodeInternal, err, "readlink %s", full)
			}
			h.Write([]byte(target))
			h.Write([]byte{0})
			continue
		}

		f, err := os.Open(full)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "open %s", full)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "read %s", full)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
