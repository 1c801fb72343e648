package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sistemacm.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout.Duration)
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
[database]
path = "/var/lib/sistemacm/cm.db"

[server]
shutdown_timeout = "5s"

[log]
format = "json"
`)
	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "/var/lib/sistemacm/cm.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr, "untouched keys keep defaults")
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "[database]\ndsn = \"postgres://\"\n")
	err := Default().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeFile(t, "[server]\nshutdown_timeout = \"soon\"\n")
	assert.Error(t, Default().LoadFile(path))
}

func TestApplyEnv_WinsOverFile(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"SISTEMACM_DB_PATH":      ":memory:",
		"SISTEMACM_HTTP_ADDR":    "127.0.0.1:9000",
		"SISTEMACM_LOG_LEVEL":    "debug",
		"SISTEMACM_CORS_ORIGINS": "https://a.example, ,https://b.example",
		"SISTEMACM_LOG_FORMAT":   "",
	}))

	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format, "empty values are ignored")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no db path":   func(c *Config) { c.Database.Path = "" },
		"no addr":      func(c *Config) { c.Server.Addr = "" },
		"bad level":    func(c *Config) { c.Log.Level = "verbose" },
		"bad format":   func(c *Config) { c.Log.Format = "xml" },
		"zero timeout": func(c *Config) { c.Server.ShutdownTimeout = Duration{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FromFileAndEnv(t *testing.T) {
	path := writeFile(t, "[log]\nlevel = \"warn\"\n")
	t.Setenv("SISTEMACM_DB_PATH", ":memory:")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}
