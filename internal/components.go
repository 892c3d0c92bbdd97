package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/docservice"
	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/reconcile"
	"github.com/arisezione/librosoci/internal/registry"
)

// components bundles the wired application services.
type components struct {
	store  *docstore.Store
	reg    *registry.Registry
	engine *backup.Engine
	rec    *reconcile.Reconciler
	svc    *docservice.Service
}

// buildComponents wires the document store, registry, backup engine,
// reconciler, and document service from the configuration.
func buildComponents(cfg *Config, logger *slog.Logger) (*components, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := docstore.Open(docstore.Config{
		Root:            cfg.DocumentsRoot(),
		TokenLength:     cfg.Storage.TokenLength,
		ExtraCategories: cfg.Storage.ExtraCategories,
	})
	if err != nil {
		return nil, fmt.Errorf("init document store: %w", err)
	}
	if err := store.EnsureStructure(); err != nil {
		return nil, fmt.Errorf("init document store: %w", err)
	}

	reg, err := registry.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}

	engine := backup.NewEngine(cfg.BackupDir(), cfg.Backup.MaxBackups, logger)
	rec := reconcile.New(store, reg, logger)
	svc := docservice.NewService(docservice.Deps{
		Store:      store,
		Registry:   reg,
		Backups:    engine,
		Reconciler: rec,
		DBPath:     cfg.DatabasePath(),
		DataDir:    cfg.Storage.DataDir,
		Logger:     logger,
	})

	return &components{store: store, reg: reg, engine: engine, rec: rec, svc: svc}, nil
}

// Close releases the registry connection.
func (c *components) Close() error {
	return c.reg.Close()
}
