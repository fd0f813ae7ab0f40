package release

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks a release archive into destDir. Zip and gzip-compressed
// tar archives are supported; anything else is a fatal error.
func Extract(archivePath string, destDir string) error {
	err := os.MkdirAll(destDir, 0o755)
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, destDir)
	default:
		return ErrUnsupportedFormat
	}
}

// safeJoin resolves name under destDir and rejects path traversal escapes.
func safeJoin(destDir string, name string) (string, error) {
	target := filepath.Join(destDir, name)

	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", errors.New("archive entry escapes the destination directory: " + name)
	}

	return target, nil
}

func extractZip(archivePath string, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}

	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			err = os.MkdirAll(target, entry.Mode().Perm()|0o700)
			if err != nil {
				return err
			}

			continue
		}

		err = os.MkdirAll(filepath.Dir(target), 0o755)
		if err != nil {
			return err
		}

		err = writeZipEntry(entry, target)
		if err != nil {
			return err
		}
	}

	return nil
}

func writeZipEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}

	defer rc.Close()

	// #nosec G304
	fd, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode().Perm())
	if err != nil {
		return err
	}

	defer fd.Close()

	for {
		_, err = io.CopyN(fd, rc, 4*1024*1024)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}
	}

	return nil
}

func extractTarGz(archivePath string, destDir string) error {
	// #nosec G304
	fd, err := os.Open(archivePath)
	if err != nil {
		return err
	}

	defer fd.Close()

	gz, err := gzip.NewReader(fd)
	if err != nil {
		return errors.New("gzip error reading archive: " + err.Error())
	}

	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, os.FileMode(header.Mode).Perm()|0o700)
			if err != nil {
				return err
			}

		case tar.TypeReg:
			err = os.MkdirAll(filepath.Dir(target), 0o755)
			if err != nil {
				return err
			}

			err = writeTarEntry(tr, target, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}

		case tar.TypeSymlink:
			// Symlinks must stay within the destination as well.
			_, err = safeJoin(filepath.Dir(target), header.Linkname)
			if err != nil {
				return err
			}

			err = os.Symlink(header.Linkname, target)
			if err != nil && !os.IsExist(err) {
				return err
			}

		default:
			// Skip anything exotic (devices, fifos, ...).
		}
	}
}

func writeTarEntry(tr *tar.Reader, target string, mode os.FileMode) error {
	// #nosec G304
	fd, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	defer fd.Close()

	for {
		_, err = io.CopyN(fd, tr, 4*1024*1024)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}
	}

	return nil
}
