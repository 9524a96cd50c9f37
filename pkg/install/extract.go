package install

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/depforge/depforge/pkg/errors"
)

// extract unpacks an artifact file into destDir. The format is detected
// from the filename: tar (optionally gzip, xz or bzip2 compressed) and
// zip archives are expanded; anything else is copied in verbatim.
func extract(artifactPath, destDir string) error {
	name := strings.ToLower(filepath.Base(artifactPath))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(artifactPath, destDir)
	case strings.HasSuffix(name, ".tar"),
		strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"),
		strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"),
		strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return extractTar(artifactPath, destDir)
	default:
		return copyVerbatim(artifactPath, destDir)
	}
}

func extractTar(artifactPath, destDir string) error {
	f, err := os.Open(artifactPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "open artifact %s", artifactPath)
	}
	defer f.Close()

	var r io.Reader = f
	name := strings.ToLower(artifactPath)
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "gzip artifact %s", artifactPath)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(name, ".xz"), strings.HasSuffix(name, ".txz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "xz artifact %s", artifactPath)
		}
		r = xr
	case strings.HasSuffix(name, ".bz2"), strings.HasSuffix(name, ".tbz2"):
		r = bzip2.NewReader(f)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "read tar entry in %s", artifactPath)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "create dir %s", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "create dir for %s", target)
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// Reject links escaping the install directory.
			if filepath.IsAbs(hdr.Linkname) || strings.Contains(hdr.Linkname, "..") {
				return errors.New(errors.ErrCodeInvalidPackage, "unsafe symlink %s -> %s", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "create dir for %s", target)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "symlink %s", target)
			}
		}
	}
}

func extractZip(artifactPath, destDir string) error {
	zr, err := zip.OpenReader(artifactPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPackage, err, "open zip artifact %s", artifactPath)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "create dir %s", target)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "create dir for %s", target)
		}
		rc, err := zf.Open()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "open zip entry %s", zf.Name)
		}
		err = writeEntry(target, rc, zf.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func copyVerbatim(artifactPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create dir %s", destDir)
	}
	src, err := os.Open(artifactPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "open artifact %s", artifactPath)
	}
	defer src.Close()
	return writeEntry(filepath.Join(destDir, filepath.Base(artifactPath)), src, 0o644)
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create file %s", target)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write file %s", target)
	}
	return nil
}

// safeJoin joins an archive entry name onto destDir, rejecting entries
// that would escape it.
func safeJoin(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", errors.New(errors.ErrCodeInvalidPackage, "archive entry escapes install dir: %s", name)
	}
	return filepath.Join(destDir, clean), nil
}
