package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearOverrides unsets every override variable for the duration of a test.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		EnvInactivityThresholdHours, EnvIndexCleanupIntervalHrs,
		EnvAccessTokenDays, EnvRefreshTokenDays,
		EnvEmbeddingModel, EnvQAModel, EnvPort,
	} {
		t.Setenv(env, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, IndexBackendSQLite, cfg.Index.Backend)
	assert.Equal(t, time.Hour, cfg.Index.InactivityThreshold())
	assert.Equal(t, time.Hour, cfg.Index.SweepInterval())
	assert.True(t, cfg.Index.RebuildOnChange)
	assert.Zero(t, cfg.Index.GraphMinChunks, "graph search is opt-in")
	assert.Equal(t, 4, cfg.QA.TopK)
	assert.Equal(t, 1600, cfg.QA.MaxChunkChars)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL())
	assert.Equal(t, int64(20<<20), cfg.Upload.MaxBytes())
	assert.True(t, cfg.RateLimiting.Enabled)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, "extractive", cfg.LLM.Provider)
	require.NoError(t, cfg.Validate())
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_JSONKeepsDefaultsForMissingFields(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9100, "qa": {"top_k": 6}}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 6, cfg.QA.TopK)
	assert.Equal(t, 1600, cfg.QA.MaxChunkChars)
	assert.Equal(t, IndexBackendSQLite, cfg.Index.Backend)
}

func TestLoad_YAML(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 9200
index:
  backend: dir
  dir: /var/lib/docquery/indexes
  inactivity_threshold_hours: 6
  sweep_interval_hours: 2
  rebuild_on_change: false
llm:
  provider: ollama
  model: llama3.2
cors:
  allowed_origins: ["https://app.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, IndexBackendDir, cfg.Index.Backend)
	assert.Equal(t, "/var/lib/docquery/indexes", cfg.Index.Dir)
	assert.Equal(t, 6*time.Hour, cfg.Index.InactivityThreshold())
	assert.Equal(t, 2*time.Hour, cfg.Index.SweepInterval())
	assert.False(t, cfg.Index.RebuildOnChange)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestSave_YAMLRoundTrip(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := Default()
	cfg.Port = 9300
	cfg.Index.Backend = IndexBackendDir
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv(EnvInactivityThresholdHours, "3")
	t.Setenv(EnvIndexCleanupIntervalHrs, "2")
	t.Setenv(EnvAccessTokenDays, "2")
	t.Setenv(EnvRefreshTokenDays, "30")
	t.Setenv(EnvEmbeddingModel, "nomic-embed-text")
	t.Setenv(EnvQAModel, "gpt-4o")
	t.Setenv(EnvPort, "9999")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9100}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, cfg.Index.InactivityThreshold())
	assert.Equal(t, 2*time.Hour, cfg.Index.SweepInterval())
	assert.Equal(t, 48*time.Hour, cfg.Auth.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL())
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 9999, cfg.Port)
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	clearOverrides(t)
	t.Setenv(EnvInactivityThresholdHours, "soon")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvInactivityThresholdHours)
}

func TestLoad_ExpandsEnvAndTilde(t *testing.T) {
	clearOverrides(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DQ_TEST_OPENAI_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"data_dir": "~/docquery",
		"index": {"backend": "dir", "dir": "~/idx", "inactivity_threshold_hours": 1, "sweep_interval_hours": 1},
		"llm": {"provider": "openai", "api_key": "${DQ_TEST_OPENAI_KEY}"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "docquery"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "idx"), cfg.Index.Dir)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_SecretsFile(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.env")
	require.NoError(t, os.WriteFile(secrets, []byte("# comment\nDQ_TEST_SECRET=\"from-file\"\nDQ_TEST_KEPT=file\n"), 0600))

	t.Setenv("DQ_TEST_SECRET", "")
	os.Unsetenv("DQ_TEST_SECRET")
	t.Setenv("DQ_TEST_KEPT", "shell")

	path := filepath.Join(dir, "config.json")
	content := `{"secrets_file": "` + secrets + `", "embedding": {"provider": "openai", "api_key": "${DQ_TEST_SECRET}"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Embedding.APIKey)
	assert.Equal(t, "shell", os.Getenv("DQ_TEST_KEPT"))
}

func TestLoad_MissingSecretsFileIsFine(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"secrets_file": "/nonexistent/secrets.env"}`), 0600))

	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": `), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "redis" }, "index backend"},
		{"zero threshold", func(c *Config) { c.Index.InactivityThresholdHours = 0 }, "inactivity_threshold_hours"},
		{"zero interval", func(c *Config) { c.Index.SweepIntervalHours = 0 }, "sweep_interval_hours"},
		{"negative graph threshold", func(c *Config) { c.Index.GraphMinChunks = -1 }, "graph_min_chunks"},
		{"zero top k", func(c *Config) { c.QA.TopK = 0 }, "top_k"},
		{"zero chunk size", func(c *Config) { c.QA.MaxChunkChars = 0 }, "max_chunk_chars"},
		{"zero token days", func(c *Config) { c.Auth.AccessTokenDays = 0 }, "token expiration"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 2 }, "bcrypt_cost"},
		{"upload size", func(c *Config) { c.Upload.MaxSizeMB = 0 }, "max_size_mb"},
		{"anonymous rate limit", func(c *Config) { c.RateLimiting.Anonymous.MaxRequests = 0 }, "anonymous"},
		{"authenticated rate limit", func(c *Config) { c.RateLimiting.Authenticated.WindowSeconds = 0 }, "authenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("rate limits ignored when disabled", func(t *testing.T) {
		cfg := Default()
		cfg.RateLimiting.Enabled = false
		cfg.RateLimiting.Anonymous.MaxRequests = 0
		assert.NoError(t, cfg.Validate())
	})
}
