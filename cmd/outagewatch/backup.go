package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database (and config file, if any) into a .tar.gz archive.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			path, err := a.snapshot(cmd, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "archive path (default database.backup_dir/outagewatch_backup_<time>.tar.gz)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		target string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "restore ARCHIVE",
		Short: "Extract a backup archive; the database lands next to database.path unless --target is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			if target == "" {
				target = filepath.Dir(a.cfg.Database.Path)
			}
			path, err := backup.Restore(cmd.Context(), args[0], target, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored database: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "directory to extract into")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

// snapshot backs up the configured database to out, or to a timestamped
// archive under database.backup_dir when out is empty.
func (a *app) snapshot(cmd *cobra.Command, out string) (string, error) {
	if out == "" {
		out = filepath.Join(a.cfg.Database.BackupDir, backup.ArchiveName(a.clock.Now()))
	}
	if err := backup.Backup(cmd.Context(), a.cfg.Database.Path, a.v.ConfigFileUsed(), out); err != nil {
		return "", err
	}
	if info, err := os.Stat(out); err == nil {
		a.logger.Info("backup written",
			zap.String("component", "backup"),
			zap.String("path", out),
			zap.Int64("bytes", info.Size()))
	}
	return out, nil
}
