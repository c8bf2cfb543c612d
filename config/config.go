// Package config loads recallgraph settings from config.yaml, a .env file
// and RECALLGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/session/sqlstore"
	"github.com/hupe1980/recallgraph/tool/mcptool"
)

const (
	configName = "config"
	configType = "yaml"
	envPrefix  = "RECALLGRAPH"

	// PostgresFallbackEnv names the connection string used when a postgres
	// checkpoint store has no dsn configured.
	PostgresFallbackEnv = "PGVECTOR_CONN"
)

// Config is the complete application configuration.
type Config struct {
	Model      ModelConfig                     `mapstructure:"model"`
	Checkpoint CheckpointConfig                `mapstructure:"checkpoint"`
	Memory     MemoryConfig                    `mapstructure:"memory"`
	Engine     EngineConfig                    `mapstructure:"engine"`
	Log        LogConfig                       `mapstructure:"log"`
	Server     ServerConfig                    `mapstructure:"server"`
	MCPClients map[string]mcptool.ServerConfig `mapstructure:"mcp_clients"`
}

// ModelConfig selects the completion provider.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	BaseURL     string  `mapstructure:"base_url"`
}

// CheckpointConfig selects the checkpoint store.
type CheckpointConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// MemoryConfig selects the long-term memory store. The sql driver shares
// the checkpoint database.
type MemoryConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	Compress       bool   `mapstructure:"compress"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// EngineConfig tunes the turn loop.
type EngineConfig struct {
	MaxModelCalls   int    `mapstructure:"max_model_calls"`
	ToolParallelism int    `mapstructure:"tool_parallelism"`
	Persona         string `mapstructure:"persona"`
}

// LogConfig selects level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadOptions controls where Load looks for its inputs.
type LoadOptions struct {
	// File is an explicit config file. When empty, config.yaml is searched
	// in SearchPaths and a missing file is not an error.
	File string
	// SearchPaths defaults to the working directory and its parent.
	SearchPaths []string
	// DotEnv lists .env files to load before reading the environment.
	// Missing files are skipped.
	DotEnv []string
	// Viper allows tests to inject an isolated instance.
	Viper *viper.Viper
}

// Load reads, normalizes and validates the configuration.
func Load(optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{DotEnv: []string{".env"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, f := range opts.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: load %s: %v", core.ErrConfiguration, f, err)
		}
	}

	v := opts.Viper
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = defaultSearchPaths()
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", core.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", core.ErrConfiguration, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "gpt-4o-mini")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.base_url", "")
	v.SetDefault("checkpoint.driver", "memory")
	v.SetDefault("checkpoint.dsn", "")
	v.SetDefault("memory.driver", "memory")
	v.SetDefault("memory.path", "")
	v.SetDefault("memory.compress", false)
	v.SetDefault("memory.embedding_model", "text-embedding-3-small")
	v.SetDefault("engine.max_model_calls", 25)
	v.SetDefault("engine.tool_parallelism", 0)
	v.SetDefault("engine.persona", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.addr", ":8080")
}

// defaultSearchPaths mirrors the usual layouts: running from the repository
// root or from a subdirectory of it.
func defaultSearchPaths() []string {
	cwd, err := os.Getwd()
	if err != nil {
		return []string{"."}
	}
	return []string{cwd, filepath.Dir(cwd)}
}

func (c *Config) normalize() {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	c.Checkpoint.Driver = strings.ToLower(strings.TrimSpace(c.Checkpoint.Driver))
	c.Memory.Driver = strings.ToLower(strings.TrimSpace(c.Memory.Driver))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	if c.Checkpoint.DSN == "" && isPostgres(c.Checkpoint.Driver) {
		c.Checkpoint.DSN = os.Getenv(PostgresFallbackEnv)
	}
	if isPostgres(c.Checkpoint.Driver) {
		c.Checkpoint.DSN = sqlstore.NormalizePostgresDSN(c.Checkpoint.DSN)
	}

	// viper lower-cases nested keys; environment names are upper case
	for name, srv := range c.MCPClients {
		if len(srv.Env) == 0 {
			continue
		}
		env := make(map[string]string, len(srv.Env))
		for k, val := range srv.Env {
			env[strings.ToUpper(k)] = val
		}
		srv.Env = env
		c.MCPClients[name] = srv
	}
}

func isPostgres(driver string) bool {
	switch driver {
	case "postgres", "postgresql", "pgvector":
		return true
	}
	return false
}

// Validate reports the first invalid setting wrapped in core.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return invalid("model.provider %q must be openai or anthropic", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return invalid("model.name is required")
	}

	if c.Checkpoint.Driver != "memory" {
		if _, err := sqlstore.ParseDialect(c.Checkpoint.Driver); err != nil {
			return invalid("checkpoint.driver %q must be memory, sqlite, postgres or mysql", c.Checkpoint.Driver)
		}
		if c.Checkpoint.DSN == "" {
			return invalid("checkpoint.dsn is required for driver %q", c.Checkpoint.Driver)
		}
	}

	switch c.Memory.Driver {
	case "memory", "chromem":
	case "sql":
		if c.Checkpoint.Driver == "memory" {
			return invalid("memory.driver sql requires a sql checkpoint driver")
		}
	default:
		return invalid("memory.driver %q must be memory, chromem or sql", c.Memory.Driver)
	}

	if c.Engine.ToolParallelism < 0 {
		return invalid("engine.tool_parallelism must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "json", "text", "console":
	default:
		return invalid("log.format %q must be json, text or console", c.Log.Format)
	}

	for _, name := range c.MCPClientNames() {
		srv := c.MCPClients[name]
		switch srv.Transport {
		case mcptool.TransportStdio:
			if srv.Command == "" {
				return invalid("mcp_clients.%s.command is required for stdio", name)
			}
		case mcptool.TransportSSE, mcptool.TransportHTTP:
			if srv.URL == "" {
				return invalid("mcp_clients.%s.url is required for %s", name, srv.Transport)
			}
		default:
			return invalid("mcp_clients.%s.transport %q must be stdio, sse or http", name, srv.Transport)
		}
	}

	return nil
}

// MCPClientNames returns the configured server names in sorted order.
func (c *Config) MCPClientNames() []string {
	names := make([]string, 0, len(c.MCPClients))
	for name := range c.MCPClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoggerConfig converts the log section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.Format = c.Log.Format
	return cfg
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfiguration, fmt.Sprintf(format, args...))
}
