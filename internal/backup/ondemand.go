package backup

import (
	"archive/zip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/checksum"
	"github.com/arisezione/librosoci/internal/models"
)

// ManifestFileName is the JSON manifest written inside on-demand archives.
const ManifestFileName = "backup_manifest.json"

// FullBackup packages the data directory plus a consistent database
// snapshot into <backup_dir>/<YYYYMMDD_HHMMSS>_backup.zip and returns the
// archive path. The data tree is copied excluding the live database file,
// which is captured through the engine's native snapshot primitive
// instead. On failure the staging folder and any partial archive are
// removed, each cleanup isolated so it cannot mask the primary error.
func (e *Engine) FullBackup(dataDir, dbPath string) (string, error) {
	info, err := os.Stat(dataDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("data directory not found: %s: %w", dataDir, apperr.ErrNotFound)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("database not found: %s: %w", dbPath, apperr.ErrNotFound)
	}
	if ok, msg := e.check(dbPath); !ok {
		return "", fmt.Errorf("database corrupted: %s: %w", msg, apperr.ErrIntegrity)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create dir: %w", err)
	}

	folder := e.now().Format(archiveStamp) + "_backup"
	target := filepath.Join(e.dir, folder)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("backup folder already exists: %s: %w", target, apperr.ErrConflict)
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		return "", fmt.Errorf("backup: create staging: %w", err)
	}

	zipPath := filepath.Join(e.dir, folder+".zip")
	if err := e.buildArchive(dataDir, dbPath, target, folder, zipPath); err != nil {
		e.logger.Error("on-demand backup failed", "error", err)
		if rmErr := os.RemoveAll(target); rmErr != nil {
			e.logger.Warn("staging cleanup failed", "path", target, "error", rmErr)
		}
		if _, statErr := os.Stat(zipPath); statErr == nil {
			if rmErr := os.Remove(zipPath); rmErr != nil {
				e.logger.Warn("partial archive cleanup failed", "path", zipPath, "error", rmErr)
			}
		}
		return "", err
	}

	if err := os.RemoveAll(target); err != nil {
		e.logger.Warn("staging not removed", "path", target, "error", err)
	}
	e.logger.Info("on-demand backup archive created", "path", zipPath)
	return zipPath, nil
}

func (e *Engine) buildArchive(dataDir, dbPath, target, folder, zipPath string) error {
	absData, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("backup: resolve data dir: %w", err)
	}
	absDB, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("backup: resolve db: %w", err)
	}
	dbName := filepath.Base(absDB)
	dbWithinData := strings.HasPrefix(absDB, absData+string(os.PathSeparator))

	var skip func(name string) bool
	if dbWithinData {
		skip = func(name string) bool { return name == dbName }
	}
	if err := copyTree(absData, filepath.Join(target, "data"), skip); err != nil {
		return fmt.Errorf("backup: copy data tree: %w", err)
	}

	if err := snapshotDatabase(absDB, filepath.Join(target, dbName)); err != nil {
		return err
	}

	manifest := models.Manifest{
		CreatedAt:  e.now().Format(models.TimeLayout),
		DataSource: absData,
		DBSource:   absDB,
		DBHash:     checksum.File(absDB),
		Items: models.ManifestItems{
			DataDir:  "data",
			Database: dbName,
		},
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(target, ManifestFileName), raw, 0o644); err != nil {
		return fmt.Errorf("backup: write manifest: %w", err)
	}

	return zipTree(zipPath, target, folder)
}

// snapshotDatabase writes a consistent copy of the live database through
// VACUUM INTO rather than a raw byte copy, so a concurrent writer inside
// the same process cannot leave a torn page in the snapshot.
func snapshotDatabase(source, dest string) error {
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("backup: create snapshot dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", source+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("backup: open source db: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("backup: database snapshot failed: %w", err)
	}
	return nil
}

// copyTree mirrors src into dst. Files whose base name the skip filter
// rejects are left out; directory structure is always preserved.
func copyTree(src, dst string, skip func(name string) bool) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if skip != nil && skip(d.Name()) {
			return nil
		}
		return copyFile(p, filepath.Join(dst, rel))
	})
}

// zipTree writes root into zipPath with every entry prefixed by the
// folder name, matching an archive built from the staging parent.
func zipTree(zipPath, root, prefix string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("backup: create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := prefix
		if rel != "." {
			name = path.Join(prefix, filepath.ToSlash(rel))
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		if d.IsDir() {
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if walkErr != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("backup: build archive: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("backup: finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("backup: close archive: %w", err)
	}
	return nil
}
