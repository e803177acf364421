package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Store   StoreConfig   `toml:"store"`
	Log     LogConfig     `toml:"log"`
	Tracing TracingConfig `toml:"tracing"`
	A2A     A2AConfig     `toml:"a2a"`
	MCP     MCPConfig     `toml:"mcp"`
	Audit   AuditConfig   `toml:"audit"`
}

type GatewayConfig struct {
	Bind       string `toml:"bind"`
	Port       int    `toml:"port"`
	CORSOrigin string `toml:"cors_origin"`
}

type StoreConfig struct {
	DSN  string `toml:"dsn"`
	Seed bool   `toml:"seed"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type A2AConfig struct {
	Enabled     bool   `toml:"enabled"`
	AuthToken   string `toml:"auth_token"`
	ExternalURL string `toml:"external_url"`
}

type MCPConfig struct {
	Enabled   bool   `toml:"enabled"`
	KeepAlive string `toml:"keepalive"`
}

type AuditConfig struct {
	Enabled bool `toml:"enabled"`
}

// KeepAliveInterval parses MCP.KeepAlive, falling back to 30s when the value
// is empty or invalid.
func (c MCPConfig) KeepAliveInterval() time.Duration {
	d, err := time.ParseDuration(c.KeepAlive)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Bind:       "all",
			Port:       5000,
			CORSOrigin: "*",
		},
		Store: StoreConfig{
			DSN: filepath.Join(DataDir(), "consultpro.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		A2A: A2AConfig{
			Enabled:     true,
			ExternalURL: "http://localhost:5000/a2a/",
		},
		MCP: MCPConfig{
			Enabled:   true,
			KeepAlive: "30s",
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "consultpro.db")
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

// applyEnv lets deployment environments override the listen port and the
// database location without a config file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Gateway.Port = port
	}
	if v := os.Getenv("CONSULTPRO_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	return nil
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

func DataDir() string {
	if dir := os.Getenv("CONSULTPRO_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".consultpro"
	}
	return filepath.Join(home, ".consultpro")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "consultpro.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
