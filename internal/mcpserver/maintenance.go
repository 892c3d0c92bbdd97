package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/reconcile"
)

func (s *Server) runBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := req.GetBool("force", false)

	path, err := s.svc.Backup(ctx, force)
	if err != nil {
		if errors.Is(err, backup.ErrUnchanged) {
			return mcp.NewToolResultText("backup skipped: no changes detected"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("backup written: %s", path)), nil
}

func (s *Server) listBackups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshots, err := s.svc.ListBackups(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(snapshots) == 0 {
		return mcp.NewToolResultText("no backups found"), nil
	}
	out, _ := json.MarshalIndent(snapshots, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) verifyDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, detail := s.svc.VerifyDatabase(ctx)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("integrity check failed: %s", detail)), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (s *Server) reconcileDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := reconcile.Options{
		DryRun:        req.GetBool("dry_run", false),
		ImportOrphans: req.GetBool("import_orphans", false),
		Backfill:      req.GetBool("backfill", false),
		PruneMissing:  req.GetBool("prune_missing", false),
	}

	report, err := s.svc.Reconcile(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
