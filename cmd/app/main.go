package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/arisezione/librosoci/internal"
	"github.com/arisezione/librosoci/internal/reconcile"
	pkgconfig "github.com/arisezione/librosoci/pkg/config"
)

// commonFlags returns the flags shared by every subcommand. A fresh
// slice is built on each call so subcommands can append safely.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("LIBROSOCI_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "app-root",
			Usage:   "Application root directory holding the data folder",
			Sources: cli.EnvVars("LIBROSOCI_APP_ROOT"),
		},
	}
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then flag overrides. The config file is required only
// when named explicitly.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	path := cmd.String("config")
	if cmd.IsSet("config") {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if _, err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if root := cmd.String("app-root"); root != "" {
		cfg.Storage.DataDir = filepath.Join(root, "data")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func runReconcile(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if db := cmd.String("db"); db != "" {
		cfg.Storage.DatabasePath = db
	}
	if root := cmd.String("section-root"); root != "" {
		cfg.Storage.SectionRoot = root
	}

	opts := reconcile.Options{
		DryRun:        cmd.Bool("dry-run"),
		ImportOrphans: cmd.Bool("import-orphans"),
		Backfill:      cmd.Bool("backfill"),
		PruneMissing:  cmd.Bool("prune-missing"),
	}
	return internal.RunReconcile(ctx, cfg, opts, cmd.Bool("json"), cmd.String("report"), os.Stdout)
}

func runBackup(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunBackup(ctx, cfg, cmd.Bool("full"), cmd.Bool("force"), os.Stdout)
}

func runRestore(ctx context.Context, cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.Args().First())
	if path == "" {
		return fmt.Errorf("usage: librosoci restore <backup-file>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunRestore(ctx, cfg, path, !cmd.Bool("no-safety"), os.Stdout)
}

func runListBackups(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunListBackups(ctx, cfg, os.Stdout)
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if db := cmd.String("db"); db != "" {
		cfg.Storage.DatabasePath = db
	}
	return internal.RunVerify(ctx, cfg, os.Stdout)
}

func main() {
	cmd := &cli.Command{
		Name:  "librosoci",
		Usage: "Section document archive with a reconciled registry and incremental database backups",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server",
				Flags:  commonFlags(),
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server on stdio",
				Flags:  commonFlags(),
				Action: runMCP,
			},
			{
				Name:  "reconcile",
				Usage: "Reconcile the document registry against the files on disk",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the database file",
					},
					&cli.StringFlag{
						Name:  "section-root",
						Usage: "Path to the section document root",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report planned changes without writing them",
					},
					&cli.BoolFlag{
						Name:  "import-orphans",
						Usage: "Register unknown files found in category directories",
					},
					&cli.BoolFlag{
						Name:  "backfill",
						Usage: "Seed the registry from the metadata file first",
					},
					&cli.BoolFlag{
						Name:  "prune-missing",
						Usage: "Soft-delete records whose external file is gone",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full report as JSON",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Also write the JSON report to this file",
					},
				),
				Action: runReconcile,
			},
			{
				Name:  "backup",
				Usage: "Write a database backup",
				Flags: append(commonFlags(),
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Archive the whole data directory instead of the database alone",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Write a backup even when the database is unchanged",
					},
				),
				Action: runBackup,
			},
			{
				Name:      "restore",
				Usage:     "Replace the live database with a backup file",
				ArgsUsage: "<backup-file>",
				Flags: append(commonFlags(),
					&cli.BoolFlag{
						Name:  "no-safety",
						Usage: "Skip the pre-restore safety copy of the live database",
					},
				),
				Action: runRestore,
			},
			{
				Name:   "backups",
				Usage:  "List available database backups",
				Flags:  commonFlags(),
				Action: runListBackups,
			},
			{
				Name:  "verify",
				Usage: "Run a database integrity check",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the database file",
					},
				),
				Action: runVerify,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
