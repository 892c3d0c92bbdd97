package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arisezione/librosoci/internal/apperr"
)

// Restore overwrites targetDBPath with the backup at backupPath. The
// backup is validated first; when safety is set and a target exists, a
// .pre_restore_<timestamp> snapshot of it is taken (best-effort) before
// the overwrite. If the overwrite fails midway or the restored database
// fails validation, the safety snapshot is copied back, so the target
// never ends up worse than before the call. Safety snapshots are never
// pruned automatically.
func (e *Engine) Restore(backupPath, targetDBPath string, safety bool) (string, error) {
	if _, err := os.Stat(backupPath); err != nil {
		return "", fmt.Errorf("backup file not found: %s: %w", backupPath, apperr.ErrNotFound)
	}
	if ok, msg := e.check(backupPath); !ok {
		e.logger.Error("backup file corrupted", "path", backupPath, "reason", msg)
		return "", fmt.Errorf("backup corrupted: %s: %w", msg, apperr.ErrIntegrity)
	}

	safetyPath := ""
	if safety {
		if _, err := os.Stat(targetDBPath); err == nil {
			candidate := targetDBPath + ".pre_restore_" + e.now().Format(archiveStamp)
			if err := copyFile(targetDBPath, candidate); err != nil {
				e.logger.Warn("failed to create safety backup", "error", err)
			} else {
				safetyPath = candidate
				e.logger.Info("safety backup created", "path", candidate)
			}
		}
	}

	if err := copyFile(backupPath, targetDBPath); err != nil {
		if e.revertFromSafety(safetyPath, targetDBPath) {
			return "", fmt.Errorf("restore failed and reverted: %v", err)
		}
		return "", fmt.Errorf("restore failed: %w", err)
	}
	e.logger.Info("database restored", "from", backupPath)

	if ok, msg := e.check(targetDBPath); !ok {
		if e.revertFromSafety(safetyPath, targetDBPath) {
			return "", fmt.Errorf("restore failed and reverted: %s: %w", msg, apperr.ErrIntegrity)
		}
		return "", fmt.Errorf("restore failed: %s: %w", msg, apperr.ErrIntegrity)
	}

	return fmt.Sprintf("Successfully restored from %s", filepath.Base(backupPath)), nil
}

// revertFromSafety copies the safety snapshot back over target and
// reports whether the target was returned to its pre-call content.
func (e *Engine) revertFromSafety(safetyPath, target string) bool {
	if safetyPath == "" {
		return false
	}
	if _, err := os.Stat(safetyPath); err != nil {
		return false
	}
	e.logger.Error("restored database invalid, reverting to safety backup")
	if err := copyFile(safetyPath, target); err != nil {
		e.logger.Error("revert from safety backup failed", "error", err)
		return false
	}
	return true
}
