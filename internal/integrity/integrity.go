// Package integrity gates write-affecting operations on the storage
// engine's own consistency check.
package integrity

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Check runs PRAGMA integrity_check against the database at path. ok is
// true only when the check returns its single canonical "ok" row; any
// other row text or error is surfaced verbatim in the message. The
// database is opened read-only, so probing never creates or mutates the
// file. Check never fails hard: callers decide skip/abort from the pair.
func Check(path string) (bool, string) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return false, err.Error()
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return false, err.Error()
	}
	if result == "ok" {
		return true, ""
	}
	return false, result
}
