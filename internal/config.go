package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/docstore"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Default file names under the data directory.
const (
	DefaultDatabaseFile = "soci.db"
	DefaultSectionDir   = "section_docs"
	DefaultBackupDir    = "backups"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Backup  BackupConfig      `yaml:"backup"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// DatabasePath returns the registry database path, derived from the data
// directory unless overridden.
func (c *Config) DatabasePath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return filepath.Join(c.Storage.DataDir, DefaultDatabaseFile)
}

// DocumentsRoot returns the section document store root, derived from the
// data directory unless overridden.
func (c *Config) DocumentsRoot() string {
	if c.Storage.SectionRoot != "" {
		return c.Storage.SectionRoot
	}
	return filepath.Join(c.Storage.DataDir, DefaultSectionDir)
}

// BackupDir returns the snapshot directory, derived from the data directory
// unless overridden.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataDir, DefaultBackupDir)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the document store and registry locations.
// DatabasePath and SectionRoot default to paths under DataDir when empty.
type StorageConfig struct {
	DataDir         string   `yaml:"data_dir"`
	DatabasePath    string   `yaml:"database_path"`
	SectionRoot     string   `yaml:"section_root"`
	TokenLength     int      `yaml:"token_length"`
	ExtraCategories []string `yaml:"extra_categories"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.TokenLength, validation.Min(0), validation.Max(64)),
	)
}

// BackupConfig holds snapshot settings. Dir defaults to a directory under
// the data dir when empty.
type BackupConfig struct {
	Dir        string `yaml:"dir"`
	MaxBackups int    `yaml:"max_backups"`
	OnStartup  bool   `yaml:"on_startup"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBackups, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			TokenLength: docstore.DefaultTokenLength,
		},
		Backup: BackupConfig{
			MaxBackups: backup.DefaultMaxBackups,
			OnStartup:  true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
