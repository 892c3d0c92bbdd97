package models

// BackupMetadata is the .backup_meta.json record kept next to incremental
// snapshots. It is overwritten after each successful backup and read
// tolerantly: a missing or unreadable file yields the zero value.
type BackupMetadata struct {
	LastBackupHash string `json:"last_backup_hash"`
	LastBackupTime string `json:"last_backup_time"`
	LastBackupFile string `json:"last_backup_file"`
}

// Snapshot describes one incremental backup file on disk.
type Snapshot struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	ModTime  string `json:"mod_time"`
	Valid    bool   `json:"valid"`
}

// Manifest is the backup_manifest.json written inside on-demand archives.
type Manifest struct {
	CreatedAt  string        `json:"created_at"`
	DataSource string        `json:"data_source"`
	DBSource   string        `json:"db_source"`
	DBHash     string        `json:"db_hash"`
	Items      ManifestItems `json:"items"`
}

// ManifestItems names the members of an on-demand archive.
type ManifestItems struct {
	DataDir  string `json:"data_dir"`
	Database string `json:"database"`
}
