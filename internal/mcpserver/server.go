// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the document archive tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arisezione/librosoci/internal/docservice"
)

// Server wraps the MCP server with the document tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Libro Soci",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the section document catalog, optionally filtered by category."),
		mcp.WithString("category", mcp.Description("Optional category label (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get one document record with its current file state."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Document token (hex filename stem)")),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search documents by name, description, or category."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("archive_document",
		mcp.WithDescription("Copy a local file into the section document store under a fresh "+
			"token name and register it. The source file is left in place. Read the "+
			"librosoci://storage-layout resource for how the store is organized."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file to archive")),
		mcp.WithString("category", mcp.Description("Category label; unknown labels fall back to Altro")),
		mcp.WithString("description", mcp.Description("Free-form description")),
	), s.archiveDocument)

	s.mcp.AddTool(mcp.NewTool("archive_from_url",
		mcp.WithDescription("Download a document from an HTTP(S) URL or data URI and archive it "+
			"like archive_document. Content must match the file extension."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source URL or base64 data URI")),
		mcp.WithString("filename", mcp.Description("Filename to record; derived from the URL when empty")),
		mcp.WithString("category", mcp.Description("Category label")),
		mcp.WithString("description", mcp.Description("Free-form description")),
	), s.archiveFromURL)

	s.mcp.AddTool(mcp.NewTool("update_document",
		mcp.WithDescription("Change a document's category and description. A category change "+
			"moves the stored file into the new category directory."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Document token")),
		mcp.WithString("category", mcp.Required(), mcp.Description("New category label")),
		mcp.WithString("description", mcp.Description("New description (empty clears it)")),
	), s.updateDocument)

	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("Delete a document: the stored file is removed and the registry row is marked deleted."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Document token")),
	), s.deleteDocument)

	s.mcp.AddTool(mcp.NewTool("get_storage_contract",
		mcp.WithDescription("Returns the storage layout contract. Call this before reasoning "+
			"about files on disk or advising manual changes."),
	), s.getStorageContract)

	s.mcp.AddTool(mcp.NewTool("run_backup",
		mcp.WithDescription("Snapshot the registry database. Skipped when the content has not "+
			"changed since the last snapshot, unless force is set."),
		mcp.WithBoolean("force", mcp.Description("Back up even when unchanged")),
	), s.runBackup)

	s.mcp.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List database snapshots, newest first, with their integrity state."),
	), s.listBackups)

	s.mcp.AddTool(mcp.NewTool("verify_database",
		mcp.WithDescription("Run the SQLite integrity check against the live registry database."),
	), s.verifyDatabase)

	s.mcp.AddTool(mcp.NewTool("reconcile_documents",
		mcp.WithDescription("Re-align the registry with the files on disk: relink moved files, "+
			"report missing ones, optionally import orphans and prune dead rows."),
		mcp.WithBoolean("dry_run", mcp.Description("Report what would change without writing")),
		mcp.WithBoolean("import_orphans", mcp.Description("Register untracked files found in category directories")),
		mcp.WithBoolean("backfill", mcp.Description("Seed registry rows from the metadata file and disk first")),
		mcp.WithBoolean("prune_missing", mcp.Description("Soft-delete rows whose recorded path lies outside the store")),
	), s.reconcileDocuments)

	// Resource: storage layout contract.
	s.mcp.AddResource(
		mcp.NewResource("librosoci://storage-layout", "Storage Layout Contract",
			mcp.WithResourceDescription("How the section document store is organized on disk."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStorageContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := ""
	if c, err := req.RequireString("category"); err == nil {
		category = strings.TrimSpace(c)
	}

	items, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if category != "" {
		filtered := items[:0]
		for _, item := range items {
			if strings.EqualFold(item.Category, category) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, token)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", token)), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchDocuments(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) archiveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category := ""
	if c, cErr := req.RequireString("category"); cErr == nil {
		category = c
	}
	description := ""
	if d, dErr := req.RequireString("description"); dErr == nil {
		description = d
	}

	doc, err := s.svc.AddDocument(ctx, docservice.AddRequest{
		SourcePath:  path,
		Category:    category,
		Description: description,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) updateDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description := ""
	if d, dErr := req.RequireString("description"); dErr == nil {
		description = d
	}

	doc, err := s.svc.UpdateDocument(ctx, token, category, description)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) deleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteDocument(ctx, token); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", token)), nil
}

func (s *Server) getStorageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StorageContract), nil
}

func (s *Server) readStorageContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "librosoci://storage-layout",
			MIMEType: "text/markdown",
			Text:     StorageContract,
		},
	}, nil
}
