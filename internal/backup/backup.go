// Package backup implements hash-gated incremental snapshots, full
// on-demand archives, and validated restores for the application database.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/checksum"
	"github.com/arisezione/librosoci/internal/integrity"
	"github.com/arisezione/librosoci/internal/models"
)

// ErrUnchanged reports a skipped backup: the database hash matches the
// last recorded snapshot and force was not set.
var ErrUnchanged = errors.New("no changes detected")

// DefaultMaxBackups bounds retention when no limit is configured.
const DefaultMaxBackups = 20

const (
	metaFileName   = ".backup_meta.json"
	snapshotPrefix = "soci_backup_"
	snapshotStamp  = "2006-01-02_15-04-05"
	archiveStamp   = "20060102_150405"
)

var datePrefixPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}.*\.db$`)

// Engine coordinates snapshots, on-demand archives, and restores for one
// backup directory.
type Engine struct {
	dir    string
	max    int
	logger *slog.Logger

	// now and check are fixed in NewEngine; tests swap them to drive
	// timestamp collisions and post-restore validation outcomes.
	now   func() time.Time
	check func(string) (bool, string)
}

// NewEngine returns an Engine writing into backupDir and keeping at most
// maxBackups incremental snapshots.
func NewEngine(backupDir string, maxBackups int, logger *slog.Logger) *Engine {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dir:    backupDir,
		max:    maxBackups,
		logger: logger.With("component", "backup"),
		now:    time.Now,
		check:  integrity.Check,
	}
}

// Dir returns the backup directory.
func (e *Engine) Dir() string { return e.dir }

// Backup snapshots dbPath into the backup directory when its content hash
// differs from the last recorded one, then prunes old snapshots. It
// returns the snapshot path, or ErrUnchanged when the database is
// unchanged and force is false. A database failing the integrity check is
// never snapshotted.
func (e *Engine) Backup(dbPath string, force bool) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("database not found: %s: %w", dbPath, apperr.ErrNotFound)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create dir: %w", err)
	}

	if ok, msg := e.check(dbPath); !ok {
		e.logger.Error("database integrity check failed", "db", dbPath, "reason", msg)
		return "", fmt.Errorf("database corrupted: %s: %w", msg, apperr.ErrIntegrity)
	}

	currentHash := checksum.File(dbPath)
	if currentHash == "" {
		return "", errors.New("backup: failed to calculate database hash")
	}

	meta := e.loadMeta()
	if !force && meta.LastBackupHash == currentHash {
		e.logger.Info("database unchanged since last backup, skipping")
		return "", ErrUnchanged
	}

	name := snapshotPrefix + e.now().Format(snapshotStamp) + ".db"
	path := filepath.Join(e.dir, name)
	if err := copyFile(dbPath, path); err != nil {
		return "", fmt.Errorf("backup: copy snapshot: %w", err)
	}
	e.logger.Info("incremental backup created", "file", name)

	meta.LastBackupHash = currentHash
	meta.LastBackupTime = e.now().Format(models.TimeLayout)
	meta.LastBackupFile = name
	e.saveMeta(meta)

	e.prune()
	return path, nil
}

// List returns the snapshots in the backup directory, newest first by
// modification time, each with an integrity verdict.
func (e *Engine) List() ([]models.Snapshot, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}

	type item struct {
		snap  models.Snapshot
		mtime time.Time
	}
	var items []item
	for _, ent := range entries {
		name := ent.Name()
		lower := strings.ToLower(name)
		if ent.IsDir() || !strings.HasSuffix(lower, ".db") || !strings.Contains(lower, "backup") {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			e.logger.Warn("unreadable backup entry", "file", name, "error", err)
			continue
		}
		path := filepath.Join(e.dir, name)
		ok, _ := e.check(path)
		items = append(items, item{
			snap: models.Snapshot{
				Filename: name,
				Path:     path,
				Size:     info.Size(),
				ModTime:  info.ModTime().Format(models.TimeLayout),
				Valid:    ok,
			},
			mtime: info.ModTime(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mtime.After(items[j].mtime) })

	out := make([]models.Snapshot, len(items))
	for i, it := range items {
		out[i] = it.snap
	}
	return out, nil
}

// Meta returns the recorded backup metadata; zero value when absent.
func (e *Engine) Meta() models.BackupMetadata {
	return e.loadMeta()
}

func (e *Engine) loadMeta() models.BackupMetadata {
	var meta models.BackupMetadata
	raw, err := os.ReadFile(filepath.Join(e.dir, metaFileName))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		e.logger.Warn("unreadable backup metadata", "error", err)
	}
	return meta
}

// saveMeta is best-effort: a failed write costs one redundant snapshot on
// the next run, nothing more.
func (e *Engine) saveMeta(meta models.BackupMetadata) {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		e.logger.Error("failed to encode backup metadata", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(e.dir, metaFileName), raw, 0o644); err != nil {
		e.logger.Error("failed to save backup metadata", "error", err)
	}
}

// isSnapshotName matches the files retention is allowed to touch: .db
// files that carry "backup" in the name or start with a date stamp.
func isSnapshotName(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".db") {
		return false
	}
	return strings.Contains(lower, "backup") || datePrefixPattern.MatchString(name)
}

// prune deletes the oldest snapshots by modification time while more
// than max remain. Deletions are best-effort: failures are logged and
// skipped.
func (e *Engine) prune() {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		e.logger.Error("backup cleanup failed", "error", err)
		return
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var list []candidate
	for _, ent := range entries {
		if ent.IsDir() || !isSnapshotName(ent.Name()) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		list = append(list, candidate{filepath.Join(e.dir, ent.Name()), info.ModTime()})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].mtime.Before(list[j].mtime) })

	for len(list) > e.max {
		victim := list[0]
		list = list[1:]
		if err := os.Remove(victim.path); err != nil {
			e.logger.Warn("failed to remove old backup", "path", victim.path, "error", err)
			continue
		}
		e.logger.Info("old backup removed", "file", filepath.Base(victim.path))
	}
}

// copyFile copies src to dst, preserving mode and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
