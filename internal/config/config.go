package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Database  DatabaseConfig  `yaml:"database"`
	Merge     MergeConfig     `yaml:"merge"`
	Remote    AzureConfig     `yaml:"remote"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// WorkspaceConfig locates the working tree and its bookkeeping files.
// Relative paths are resolved against Root.
type WorkspaceConfig struct {
	Root            string `yaml:"root"`
	TrackingFile    string `yaml:"tracking_file"`
	DependenciesDir string `yaml:"dependencies_dir"`
	// TempDir holds merge staging directories; empty uses the OS default
	TempDir string `yaml:"temp_dir"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MergeConfig contains three-way merge settings
type MergeConfig struct {
	// Workers bounds concurrent file merges; 0 means one per CPU
	Workers int `yaml:"workers"`
}

// AzureConfig contains the settings of the read-only remote snapshot
// provider backed by Azure Blob Storage
type AzureConfig struct {
	Enabled          bool   `yaml:"enabled"`
	StorageAccount   string `yaml:"storage_account"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix"`
	ConnectionString string `yaml:"connection_string"`
	SASToken         string `yaml:"sas_token"`
	// For service principal auth
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Use managed identity
	UseManagedIdentity bool `yaml:"use_managed_identity"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads and parses the configuration file. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration content
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options
func (c *Config) applyDefaults() {
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}

	if c.Workspace.TrackingFile == "" {
		c.Workspace.TrackingFile = ".vault.map.json"
	}

	if c.Workspace.DependenciesDir == "" {
		c.Workspace.DependenciesDir = ".dependencies"
	}

	if c.Database.Path == "" {
		c.Database.Path = ".vault/objects.db"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}

	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "warning"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	if c.Merge.Workers < 0 {
		return fmt.Errorf("merge.workers must not be negative")
	}

	if filepath.IsAbs(c.Workspace.DependenciesDir) {
		return fmt.Errorf("workspace.dependencies_dir must be relative to the workspace root")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if !c.Remote.Enabled {
		return nil
	}

	if c.Remote.StorageAccount == "" {
		return fmt.Errorf("remote.storage_account is required")
	}

	if c.Remote.Container == "" {
		return fmt.Errorf("remote.container is required")
	}

	if c.Remote.GetAuthMethod() == "none" {
		return fmt.Errorf("no Azure authentication method configured (connection_string, sas_token, managed_identity, or service principal)")
	}

	return nil
}

// Resolve returns p relative to the workspace root unless it is absolute
func (w WorkspaceConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.Root, p)
}

// Apply configures the global logger
func (l LogConfig) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if l.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// UnmarshalYAML implements custom unmarshaling for ServerConfig to handle duration
func (s *ServerConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawServerConfig struct {
		Port            int    `yaml:"port"`
		Host            string `yaml:"host"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	}

	var raw rawServerConfig
	if err := unmarshal(&raw); err != nil {
		return err
	}

	if raw.ShutdownTimeout != "" {
		duration, err := time.ParseDuration(raw.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid server shutdown timeout: %w", err)
		}
		s.ShutdownTimeout = duration
	}

	s.Port = raw.Port
	s.Host = raw.Host
	return nil
}

// GetAuthMethod returns a string describing the configured auth method
func (c *AzureConfig) GetAuthMethod() string {
	if c.ConnectionString != "" {
		return "connection_string"
	}
	if c.SASToken != "" {
		return "sas_token"
	}
	if c.UseManagedIdentity {
		return "managed_identity"
	}
	if c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" {
		return "service_principal"
	}
	return "none"
}

// GetServiceURL returns the Azure Blob service URL
func (c *AzureConfig) GetServiceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}
