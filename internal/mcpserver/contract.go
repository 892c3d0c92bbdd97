package mcpserver

// StorageContract describes the on-disk layout of the section document store
// so LLM consumers know what they may and may not touch.
const StorageContract = `# Libro Soci Document Storage Contract

Section documents live in a managed directory tree. Tools are the only
supported way to change it; never instruct users to edit it by hand.

## Layout

` + "```" + `
data/
  soci.db                     # SQLite registry (documents table, soft deletes)
  section_docs/
    metadata.json             # token -> document record, mirrors the registry
    bilanci/                  # one directory per category, slug-named
      4bc3a1f09d.pdf          # stored file: <token><ext>
      elenco_documenti.txt    # generated category listing
    verbali_cd/
    ...
` + "```" + `

## Rules

1. **Tokens are immutable.** A stored file is named ` + "`" + `<token><ext>` + "`" + ` where the
   token is lowercase hex (10 characters by default). The token identifies the
   document in every tool call.
2. **Categories map to directories.** Category labels (e.g. "Verbali CD")
   are slugged to directory names (` + "`" + `verbali_cd` + "`" + `). Unknown labels fall
   back to "Altro". Use ` + "`" + `update_document` + "`" + ` to move a document between
   categories; the file moves with it.
3. **Generated artifacts.** ` + "`" + `elenco_documenti.txt` + "`" + ` and ` + "`" + `metadata.json` + "`" + ` are
   rewritten by the application. Manual edits are lost on the next change.
4. **Deletes are soft in the registry.** ` + "`" + `delete_document` + "`" + ` removes the file
   and marks the row deleted; the row stays for bookkeeping.
5. **Files dropped into a category directory by hand** are orphans. Run
   ` + "`" + `reconcile_documents` + "`" + ` with ` + "`" + `import_orphans` + "`" + ` to register them; a file whose
   name stem already looks like a token keeps it, anything else gets a fresh one.
6. **Backups.** ` + "`" + `run_backup` + "`" + ` snapshots the registry database as
   ` + "`" + `soci_backup_<YYYY-MM-DD_HH-MM-SS>.db` + "`" + ` and skips unchanged content unless
   forced. Restoring replaces the live database after an integrity check.
`
