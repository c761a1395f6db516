// Package config loads and validates the docquery configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Port         int                `json:"port" yaml:"port"`
	DataDir      string             `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	SecretsFile  string             `json:"secrets_file,omitempty" yaml:"secrets_file,omitempty"`
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	Index        IndexConfig        `json:"index" yaml:"index"`
	QA           QAConfig           `json:"qa" yaml:"qa"`
	Embedding    EmbeddingConfig    `json:"embedding" yaml:"embedding"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	Auth         AuthConfig         `json:"auth" yaml:"auth"`
	Upload       UploadConfig       `json:"upload" yaml:"upload"`
	RateLimiting RateLimitingConfig `json:"rate_limiting" yaml:"rate_limiting"`
	CORS         CORSConfig         `json:"cors,omitempty" yaml:"cors,omitempty"`
	Maintenance  MaintenanceConfig  `json:"maintenance" yaml:"maintenance"`
	Debug        DebugConfig        `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// DatabaseConfig contains database settings. An empty path means
// <data_dir>/data/docquery.db.
type DatabaseConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Index backends.
const (
	IndexBackendSQLite = "sqlite"
	IndexBackendDir    = "dir"
)

// IndexConfig controls the per-document vector index lifecycle.
type IndexConfig struct {
	// Backend is "sqlite" (indexes in the main database) or "dir".
	Backend string `json:"backend" yaml:"backend"`

	// Dir holds the directory backend's artifacts. Empty means
	// <data_dir>/indexes.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	InactivityThresholdHours int  `json:"inactivity_threshold_hours" yaml:"inactivity_threshold_hours"`
	SweepIntervalHours       int  `json:"sweep_interval_hours" yaml:"sweep_interval_hours"`
	RebuildOnChange          bool `json:"rebuild_on_change" yaml:"rebuild_on_change"`
	WarmOnIngest             bool `json:"warm_on_ingest" yaml:"warm_on_ingest"`

	// GraphMinChunks is the chunk count from which an HNSW graph is built.
	// Zero, the default, disables graphs so every query is an exact search.
	// Graph search is approximate and can miss true nearest chunks.
	GraphMinChunks int `json:"graph_min_chunks" yaml:"graph_min_chunks"`
}

// InactivityThreshold returns the eviction threshold as a time.Duration.
func (i IndexConfig) InactivityThreshold() time.Duration {
	return time.Duration(i.InactivityThresholdHours) * time.Hour
}

// SweepInterval returns the eviction job interval as a time.Duration.
func (i IndexConfig) SweepInterval() time.Duration {
	return time.Duration(i.SweepIntervalHours) * time.Hour
}

// QAConfig tunes retrieval.
type QAConfig struct {
	TopK          int `json:"top_k" yaml:"top_k"`
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider       string `json:"provider" yaml:"provider"` // "hashing", "openai" or "ollama"
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the request timeout as a time.Duration.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	Provider       string `json:"provider" yaml:"provider"` // "extractive", "openai" or "ollama"
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Timeout returns the request timeout as a time.Duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// AuthConfig contains user and token settings
type AuthConfig struct {
	AccessTokenDays  int `json:"access_token_days" yaml:"access_token_days"`
	RefreshTokenDays int `json:"refresh_token_days" yaml:"refresh_token_days"`
	BcryptCost       int `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenDays) * 24 * time.Hour
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenDays) * 24 * time.Hour
}

// UploadConfig limits document uploads.
type UploadConfig struct {
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`
}

// MaxBytes returns the upload limit in bytes.
func (u UploadConfig) MaxBytes() int64 {
	return int64(u.MaxSizeMB) << 20
}

// RateLimitingConfig contains rate limiting settings
type RateLimitingConfig struct {
	Enabled                bool                `json:"enabled" yaml:"enabled"`
	Anonymous              RateLimitTierConfig `json:"anonymous" yaml:"anonymous"`
	Authenticated          RateLimitTierConfig `json:"authenticated" yaml:"authenticated"`
	CleanupIntervalSeconds int                 `json:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`
}

// RateLimitTierConfig defines rate limiting for a specific tier (anonymous vs authenticated)
type RateLimitTierConfig struct {
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	MaxRequests   int `json:"max_requests" yaml:"max_requests"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// MaintenanceConfig controls the background housekeeping tasks. Index
// eviction is configured under IndexConfig.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Schedule is the cron spec (six fields, with seconds) for the token
	// cleanup and database maintenance tasks.
	Schedule string `json:"schedule" yaml:"schedule"`

	VacuumEnabled   bool  `json:"vacuum_enabled" yaml:"vacuum_enabled"`
	VacuumThreshold int64 `json:"vacuum_threshold_mb" yaml:"vacuum_threshold_mb"`
	BackupBeforeVac bool  `json:"backup_before_vacuum" yaml:"backup_before_vacuum"`
	OptimizeIndexes bool  `json:"optimize_indexes" yaml:"optimize_indexes"`
}

// DebugConfig contains debugging settings
type DebugConfig struct {
	VerboseLogging bool `json:"verbose_logging" yaml:"verbose_logging"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Port: 8000,
		Index: IndexConfig{
			Backend:                  IndexBackendSQLite,
			InactivityThresholdHours: 1,
			SweepIntervalHours:       1,
			RebuildOnChange:          true,
			WarmOnIngest:             false,
			GraphMinChunks:           0,
		},
		QA: QAConfig{
			TopK:          4,
			MaxChunkChars: 1600,
		},
		Embedding: EmbeddingConfig{
			Provider:       "hashing",
			Dimensions:     384,
			TimeoutSeconds: 60,
		},
		LLM: LLMConfig{
			Provider:       "extractive",
			TimeoutSeconds: 120,
			MaxTokens:      512,
		},
		Auth: AuthConfig{
			AccessTokenDays:  1,
			RefreshTokenDays: 7,
			BcryptCost:       12,
		},
		Upload: UploadConfig{MaxSizeMB: 20},
		RateLimiting: RateLimitingConfig{
			Enabled: true,
			Anonymous: RateLimitTierConfig{
				WindowSeconds: 60,
				MaxRequests:   30, // per IP: register, login, health
			},
			Authenticated: RateLimitTierConfig{
				WindowSeconds: 60,
				MaxRequests:   120, // per user
			},
			CleanupIntervalSeconds: 300,
		},
		Maintenance: MaintenanceConfig{
			Enabled:         true,
			Schedule:        "0 0 3 * * *", // Daily at 3 AM
			VacuumEnabled:   true,
			VacuumThreshold: 100,
			OptimizeIndexes: true,
		},
	}
}

// Load loads configuration from a file. A missing file is created with the
// defaults. Files ending in .yaml or .yml are parsed as YAML, everything else
// as JSON.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
		if err := cfg.applyEnvOverrides(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unset fields keep their defaults.
	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Tilde first so that secrets_file can reference ~/... paths.
	cfg.expandTilde()

	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	cfg.expandEnvVars()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Save saves the configuration to a file, creating its directory if needed.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandEnvVars expands ${VAR} references in path and credential fields.
func (c *Config) expandEnvVars() {
	c.DataDir = os.ExpandEnv(c.DataDir)
	c.SecretsFile = os.ExpandEnv(c.SecretsFile)
	c.Database.Path = os.ExpandEnv(c.Database.Path)
	c.Index.Dir = os.ExpandEnv(c.Index.Dir)

	c.Embedding.APIKey = os.ExpandEnv(c.Embedding.APIKey)
	c.Embedding.BaseURL = os.ExpandEnv(c.Embedding.BaseURL)
	c.LLM.APIKey = os.ExpandEnv(c.LLM.APIKey)
	c.LLM.BaseURL = os.ExpandEnv(c.LLM.BaseURL)
}

// Environment variables that override file values.
const (
	EnvInactivityThresholdHours = "INACTIVITY_THRESHOLD_HOURS"
	EnvIndexCleanupIntervalHrs  = "INDEX_CLEANUP_JOB_INTERVAL_HOURS"
	EnvAccessTokenDays          = "ACCESS_TOKEN_EXPIRATION_DAYS"
	EnvRefreshTokenDays         = "REFRESH_TOKEN_EXPIRATION_DAYS"
	EnvEmbeddingModel           = "EMBEDDING_MODEL"
	EnvQAModel                  = "QA_PIPELINE_MODEL"
	EnvPort                     = "DOCQUERY_PORT"
)

// applyEnvOverrides lets deployment environments tune the service without a
// config file change.
func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		env string
		dst *int
	}{
		{EnvInactivityThresholdHours, &c.Index.InactivityThresholdHours},
		{EnvIndexCleanupIntervalHrs, &c.Index.SweepIntervalHours},
		{EnvAccessTokenDays, &c.Auth.AccessTokenDays},
		{EnvRefreshTokenDays, &c.Auth.RefreshTokenDays},
		{EnvPort, &c.Port},
	}
	for _, o := range ints {
		raw, ok := os.LookupEnv(o.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", o.env, raw, err)
		}
		*o.dst = n
	}

	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvQAModel); v != "" {
		c.LLM.Model = v
	}
	return nil
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port)
	}

	switch c.Index.Backend {
	case IndexBackendSQLite, IndexBackendDir:
	default:
		return fmt.Errorf("index backend must be %q or %q (got %q)", IndexBackendSQLite, IndexBackendDir, c.Index.Backend)
	}
	if c.Index.InactivityThresholdHours <= 0 {
		return fmt.Errorf("inactivity_threshold_hours must be greater than 0")
	}
	if c.Index.SweepIntervalHours <= 0 {
		return fmt.Errorf("sweep_interval_hours must be greater than 0")
	}
	if c.Index.GraphMinChunks < 0 {
		return fmt.Errorf("graph_min_chunks cannot be negative")
	}

	if c.QA.TopK <= 0 {
		return fmt.Errorf("top_k must be greater than 0")
	}
	if c.QA.MaxChunkChars <= 0 {
		return fmt.Errorf("max_chunk_chars must be greater than 0")
	}

	if c.Auth.AccessTokenDays <= 0 || c.Auth.RefreshTokenDays <= 0 {
		return fmt.Errorf("token expiration days must be greater than 0")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost must be between 4 and 31 (got %d)", c.Auth.BcryptCost)
	}

	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload max_size_mb must be greater than 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.Anonymous.WindowSeconds <= 0 || c.RateLimiting.Anonymous.MaxRequests <= 0 {
			return fmt.Errorf("invalid anonymous rate limiting configuration")
		}
		if c.RateLimiting.Authenticated.WindowSeconds <= 0 || c.RateLimiting.Authenticated.MaxRequests <= 0 {
			return fmt.Errorf("invalid authenticated rate limiting configuration")
		}
	}

	return nil
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued config fields.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.DataDir = expand(c.DataDir)
	c.SecretsFile = expand(c.SecretsFile)
	c.Database.Path = expand(c.Database.Path)
	c.Index.Dir = expand(c.Index.Dir)
}

// loadSecretsFile reads a dotenv-format file into the process environment.
// Existing environment variables are NOT overridden (shell/systemd wins).
// If SecretsFile is empty or the file doesn't exist, this is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}

	vars, err := godotenv.Read(c.SecretsFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read secrets file %s: %w", c.SecretsFile, err)
	}

	for key, value := range vars {
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return nil
}
