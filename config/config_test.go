package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/tool/mcptool"
)

const sampleYAML = `
model:
  provider: anthropic
  name: claude-3-5-haiku-latest
  max_tokens: 1024
checkpoint:
  driver: sqlite
  dsn: ./data/checkpoints.db
memory:
  driver: sql
engine:
  max_model_calls: 8
  persona: You are terse.
log:
  level: debug
  format: json
mcp_clients:
  weather:
    transport: stdio
    command: weather-server
    args: ["--units", "metric"]
    env:
      API_KEY: secret
  search:
    transport: http
    url: http://localhost:9000/mcp
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func load(t *testing.T, optFns ...func(o *LoadOptions)) (*Config, error) {
	t.Helper()
	return Load(append([]func(o *LoadOptions){func(o *LoadOptions) {
		o.Viper = viper.New()
		o.DotEnv = nil
	}}, optFns...)...)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)

	cfg, err := load(t, func(o *LoadOptions) { o.File = path })
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Model.Name)
	assert.Equal(t, int64(1024), cfg.Model.MaxTokens)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Driver)
	assert.Equal(t, "sql", cfg.Memory.Driver)
	assert.Equal(t, 8, cfg.Engine.MaxModelCalls)
	assert.Equal(t, "You are terse.", cfg.Engine.Persona)
	assert.Equal(t, ":8080", cfg.Server.Addr, "defaults fill missing sections")

	assert.Equal(t, []string{"search", "weather"}, cfg.MCPClientNames())
	weather := cfg.MCPClients["weather"]
	assert.Equal(t, mcptool.TransportStdio, weather.Transport)
	assert.Equal(t, []string{"--units", "metric"}, weather.Args)
	assert.Equal(t, map[string]string{"API_KEY": "secret"}, weather.Env)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestLoad_SearchPathsAndDefaults(t *testing.T) {
	cfg, err := load(t, func(o *LoadOptions) { o.SearchPaths = []string{t.TempDir()} })
	require.NoError(t, err, "a missing config.yaml is not an error")

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, "memory", cfg.Checkpoint.Driver)
	assert.Equal(t, "memory", cfg.Memory.Driver)
	assert.Equal(t, 25, cfg.Engine.MaxModelCalls)
	assert.Empty(t, cfg.MCPClients)
}

func TestLoad_ParentDirectory(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "app")
	require.NoError(t, os.Mkdir(child, 0o755))
	writeConfig(t, root, "model:\n  name: gpt-4o\n")

	cfg, err := load(t, func(o *LoadOptions) { o.SearchPaths = []string{child, root} })
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	t.Setenv("RECALLGRAPH_MODEL_NAME", "claude-sonnet-4-0")
	t.Setenv("RECALLGRAPH_ENGINE_TOOL_PARALLELISM", "4")

	cfg, err := load(t, func(o *LoadOptions) { o.File = path })
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-0", cfg.Model.Name)
	assert.Equal(t, 4, cfg.Engine.ToolParallelism)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RECALLGRAPH_SERVER_ADDR=127.0.0.1:9999\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RECALLGRAPH_SERVER_ADDR") })

	cfg, err := load(t, func(o *LoadOptions) {
		o.SearchPaths = []string{dir}
		o.DotEnv = []string{envFile, filepath.Join(dir, "missing.env")}
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
}

func TestLoad_PostgresFallbackAndNormalization(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "checkpoint:\n  driver: postgres\n")
	t.Setenv(PostgresFallbackEnv, "postgresql+psycopg://app:pw@db:5432/app")

	cfg, err := load(t, func(o *LoadOptions) { o.File = path })
	require.NoError(t, err)
	assert.Equal(t, "postgresql://app:pw@db:5432/app", cfg.Checkpoint.DSN)
}

func TestLoad_Errors(t *testing.T) {
	_, err := load(t, func(o *LoadOptions) { o.File = filepath.Join(t.TempDir(), "nope.yaml") })
	assert.ErrorIs(t, err, core.ErrConfiguration)

	path := writeConfig(t, t.TempDir(), "model: [unclosed\n")
	_, err = load(t, func(o *LoadOptions) { o.File = path })
	assert.ErrorIs(t, err, core.ErrConfiguration)

	path = writeConfig(t, t.TempDir(), "model:\n  provider: llama\n")
	_, err = load(t, func(o *LoadOptions) { o.File = path })
	require.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "model.provider")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Model:      ModelConfig{Provider: "openai", Name: "gpt-4o-mini"},
			Checkpoint: CheckpointConfig{Driver: "memory"},
			Memory:     MemoryConfig{Driver: "memory"},
			Log:        LogConfig{Level: "info", Format: "console"},
		}
	}

	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"missing model name":     func(c *Config) { c.Model.Name = "" },
		"unknown checkpoint":     func(c *Config) { c.Checkpoint.Driver = "redis" },
		"sql without dsn":        func(c *Config) { c.Checkpoint.Driver = "sqlite" },
		"sql memory, no sql db":  func(c *Config) { c.Memory.Driver = "sql" },
		"unknown memory":         func(c *Config) { c.Memory.Driver = "pinecone" },
		"negative parallelism":   func(c *Config) { c.Engine.ToolParallelism = -1 },
		"bad level":              func(c *Config) { c.Log.Level = "loud" },
		"bad format":             func(c *Config) { c.Log.Format = "xml" },
		"stdio without command":  func(c *Config) { c.MCPClients = map[string]mcptool.ServerConfig{"a": {Transport: "stdio"}} },
		"sse without url":        func(c *Config) { c.MCPClients = map[string]mcptool.ServerConfig{"a": {Transport: "sse"}} },
		"unknown mcp transport":  func(c *Config) { c.MCPClients = map[string]mcptool.ServerConfig{"a": {Transport: "ws"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			if err := c.Validate(); !assert.ErrorIs(t, err, core.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}
