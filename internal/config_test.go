package internal

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.DataDir = "/srv/librosoci/data"

	if got := cfg.DatabasePath(); got != filepath.Join("/srv/librosoci/data", DefaultDatabaseFile) {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.DocumentsRoot(); got != filepath.Join("/srv/librosoci/data", DefaultSectionDir) {
		t.Errorf("DocumentsRoot = %q", got)
	}
	if got := cfg.BackupDir(); got != filepath.Join("/srv/librosoci/data", DefaultBackupDir) {
		t.Errorf("BackupDir = %q", got)
	}
}

func TestConfig_PathOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.DataDir = "/srv/data"
	cfg.Storage.DatabasePath = "/mnt/db/soci.db"
	cfg.Storage.SectionRoot = "/mnt/docs"
	cfg.Backup.Dir = "/mnt/backups"

	if got := cfg.DatabasePath(); got != "/mnt/db/soci.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.DocumentsRoot(); got != "/mnt/docs" {
		t.Errorf("DocumentsRoot = %q", got)
	}
	if got := cfg.BackupDir(); got != "/mnt/backups" {
		t.Errorf("BackupDir = %q", got)
	}
}

func TestStorageConfig_RequiresDataDir(t *testing.T) {
	cfg := StorageConfig{DataDir: ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty data_dir should fail validation")
	}
}

func TestStorageConfig_TokenLengthBounds(t *testing.T) {
	cfg := StorageConfig{DataDir: "./data", TokenLength: 100}
	if err := cfg.Validate(); err == nil {
		t.Fatal("token_length 100 should fail validation")
	}
	cfg.TokenLength = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token_length 0 (use default) should pass: %v", err)
	}
}

func TestBackupConfig_MaxBackupsBounds(t *testing.T) {
	cfg := BackupConfig{MaxBackups: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_backups 0 should fail validation")
	}
	cfg.MaxBackups = 20
	if err := cfg.Validate(); err != nil {
		t.Fatalf("max_backups 20 should pass: %v", err)
	}
}

func TestNewDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
