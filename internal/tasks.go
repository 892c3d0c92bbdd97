package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/reconcile"
)

// taskLogger builds the logger for one-shot maintenance commands. It
// writes to stderr so command output on stdout stays parseable.
func taskLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// RunReconcile performs one reconciliation pass and writes a summary, or
// the full JSON report, to out. A non-empty reportPath additionally saves
// the JSON report to that file. Recorded per-file errors make the command
// fail so scripts see a nonzero exit.
func RunReconcile(ctx context.Context, cfg *Config, opts reconcile.Options, asJSON bool, reportPath string, out io.Writer) error {
	comps, err := buildComponents(cfg, taskLogger(cfg))
	if err != nil {
		return err
	}
	defer comps.Close()

	report, err := comps.svc.Reconcile(ctx, opts)
	if err != nil {
		return err
	}

	if reportPath != "" {
		if err := writeReportFile(reportPath, report); err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "root: %s\n", report.Root)
		if report.DryRun {
			fmt.Fprintln(out, "dry run, nothing was written")
		}
		fmt.Fprintf(out, "scanned: %d\n", report.Scanned)
		fmt.Fprintf(out, "updated: %d\n", report.Updated)
		fmt.Fprintf(out, "missing: %d\n", report.Missing)
		fmt.Fprintf(out, "imported: %d\n", report.Imported)
		for _, msg := range report.Details.Errors {
			fmt.Fprintf(out, "error: %s\n", msg)
		}
	}

	if n := len(report.Details.Errors); n > 0 {
		return fmt.Errorf("reconcile recorded %d errors", n)
	}
	return nil
}

func writeReportFile(path string, report reconcile.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RunBackup writes an incremental database backup, or a full archive of
// the data directory when full is set.
func RunBackup(ctx context.Context, cfg *Config, full, force bool, out io.Writer) error {
	comps, err := buildComponents(cfg, taskLogger(cfg))
	if err != nil {
		return err
	}
	defer comps.Close()

	if full {
		path, err := comps.svc.FullBackup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "full backup written: %s\n", path)
		return nil
	}

	path, err := comps.svc.Backup(ctx, force)
	if errors.Is(err, backup.ErrUnchanged) {
		fmt.Fprintln(out, "backup skipped: no changes detected")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "backup written: %s\n", path)
	return nil
}

// RunRestore replaces the live database with the given backup file.
func RunRestore(ctx context.Context, cfg *Config, backupPath string, safety bool, out io.Writer) error {
	comps, err := buildComponents(cfg, taskLogger(cfg))
	if err != nil {
		return err
	}
	defer comps.Close()

	msg, err := comps.svc.Restore(ctx, backupPath, safety)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	return nil
}

// RunListBackups prints the available backups, newest first.
func RunListBackups(ctx context.Context, cfg *Config, out io.Writer) error {
	comps, err := buildComponents(cfg, taskLogger(cfg))
	if err != nil {
		return err
	}
	defer comps.Close()

	snaps, err := comps.svc.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(out, "no backups found")
		return nil
	}
	for _, s := range snaps {
		state := "ok"
		if !s.Valid {
			state = "corrupt"
		}
		fmt.Fprintf(out, "%s  %8d  %s  %s\n", s.ModTime, s.Size, state, s.Filename)
	}
	return nil
}

// RunVerify checks the live database integrity. A failed check is
// returned as an error so the command exits nonzero.
func RunVerify(ctx context.Context, cfg *Config, out io.Writer) error {
	comps, err := buildComponents(cfg, taskLogger(cfg))
	if err != nil {
		return err
	}
	defer comps.Close()

	ok, detail := comps.svc.VerifyDatabase(ctx)
	if !ok {
		return fmt.Errorf("integrity check failed: %s", detail)
	}
	fmt.Fprintln(out, "ok")
	return nil
}
