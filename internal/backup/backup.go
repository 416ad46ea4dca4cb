// Package backup snapshots the outage database into a gzipped tar archive
// and restores it.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Backup writes a consistent snapshot of the database at dbPath, plus the
// config file when configPath is set, to archivePath.
func Backup(ctx context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}
		return fmt.Errorf("stat database: %w", err)
	}

	tmp, err := os.MkdirTemp("", "outagewatch-backup-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	snap := filepath.Join(tmp, filepath.Base(dbPath))
	if err := snapshot(ctx, dbPath, snap); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	out, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = addFile(tw, snap, filepath.Base(dbPath))
	if err == nil && configPath != "" {
		err = addFile(tw, configPath, filepath.Base(configPath))
	}
	for _, c := range []io.Closer{tw, gw, out} {
		if cerr := c.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}
	if err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// snapshot copies the live database with VACUUM INTO, which is safe while
// another connection holds the WAL.
func snapshot(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// ArchiveName returns the default archive file name for a backup taken at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("outagewatch_backup_%s.tar.gz", t.UTC().Format("20060102_150405"))
}
