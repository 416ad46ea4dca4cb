package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize caps a single extracted file.
const maxEntrySize = 10 << 30

// ErrNoDatabase is returned for an archive without a .db entry.
var ErrNoDatabase = errors.New("invalid backup: archive does not contain a .db file")

// Restore extracts an archive written by Backup into targetDir and returns
// the path of the restored database. Existing files are only replaced when
// force is set.
func Restore(ctx context.Context, archivePath, targetDir string, force bool) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("decompress archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}

	var dbPath string
	tr := tar.NewReader(gr)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest, err := entryPath(hdr.Name, targetDir)
		if err != nil {
			return "", err
		}
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return "", fmt.Errorf("file already exists (use --force to overwrite): %s", dest)
			}
		}
		if err := extract(tr, dest); err != nil {
			return "", fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		if strings.HasSuffix(hdr.Name, ".db") {
			// A stale WAL from the replaced database would be replayed on open.
			os.Remove(dest + "-wal")
			os.Remove(dest + "-shm")
			dbPath = dest
		}
	}

	if dbPath == "" {
		return "", ErrNoDatabase
	}
	return dbPath, nil
}

// entryPath resolves an archive entry name under targetDir, rejecting names
// that would land outside it.
func entryPath(name, targetDir string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: absolute path %q", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", name)
	}
	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return "", fmt.Errorf("resolve target dir: %w", err)
	}
	dest := filepath.Join(absTarget, cleaned)
	if !strings.HasPrefix(dest, absTarget+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q resolves outside target", name)
	}
	return dest, nil
}

func extract(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(r, maxEntrySize)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
