// Package imex implements backup export and import for single
// accounts.
package imex

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mixelka/chatmail/internal/core"
)

// ExportBackup writes a consistent snapshot of the account database
// plus its blob directory into destDir and returns the backup path.
// The blobs land next to the database under the engine's usual
// derived name, so ImportBackup and MigrateAccount find them the same
// way.
func ExportBackup(ctx context.Context, c *core.Context, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	name := fmt.Sprintf("chatmail-backup-%s.db", time.Now().Format("2006-01-02"))
	dest := filepath.Join(destDir, name)
	destBlobdir := core.DeriveBlobdir(dest)

	// Remove leftovers from an earlier export on the same day;
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove stale backup: %w", err)
	}
	if err := os.RemoveAll(destBlobdir); err != nil {
		return "", fmt.Errorf("failed to remove stale backup blobs: %w", err)
	}

	if _, err := c.DB().ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("failed to export backup: %w", err)
	}
	if err := copyDir(c.Blobdir(), destBlobdir); err != nil {
		return "", fmt.Errorf("failed to export blobs: %w", err)
	}

	// Remember the export so housekeeping can stop nagging about
	// missing backups for a while.
	if err := c.SetConfig(ctx, core.ConfigBackupTime, fmt.Sprintf("%d", time.Now().Unix())); err != nil {
		return "", err
	}
	return dest, nil
}

// ImportBackup restores a backup file and its blob directory into a
// freshly created, still-empty account.
func ImportBackup(ctx context.Context, c *core.Context, file string) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	count, _, err := c.DB().QueryInt64(ctx, "SELECT COUNT(*) FROM msgs")
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("cannot import backup: account is already in use")
	}

	if err := c.RestoreDatabase(ctx, file); err != nil {
		return err
	}

	// Older backups may predate blob support; only a present blob
	// directory is restored.
	srcBlobdir := core.DeriveBlobdir(file)
	if _, err := os.Stat(srcBlobdir); err == nil {
		if err := copyDir(srcBlobdir, c.Blobdir()); err != nil {
			return fmt.Errorf("failed to restore blobs: %w", err)
		}
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Sync()
}
