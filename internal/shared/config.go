package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// TokenEnv is the environment variable that overrides the configured credential.
const TokenEnv = "VSA_TOKEN"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend     BackendConfig     `toml:"backend"`
	Session     SessionConfig     `toml:"session"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Status      StatusConfig      `toml:"status"`
	Bench       BenchConfig       `toml:"bench"`
}

// BackendConfig locates the analysis backend.
type BackendConfig struct {
	URL        string `toml:"url"`
	SocketPath string `toml:"socket_path"`
}

// SessionConfig contains live session settings.
type SessionConfig struct {
	Model               string `toml:"model"`
	ConnectTimeoutMS    int    `toml:"connect_timeout_ms"`
	ReconnectIntervalMS int    `toml:"reconnect_interval_ms"`
	ReconnectAttempts   int    `toml:"reconnect_attempts"`
}

// ConnectTimeout returns the upper wait bound for a single connection attempt.
func (s SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}

// ReconnectInterval returns the fixed delay between reconnection attempts.
func (s SessionConfig) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectIntervalMS) * time.Millisecond
}

// CredentialsConfig contains the bearer token used for the backend.
type CredentialsConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StatusConfig contains settings for the local status HTTP server.
type StatusConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr joins host and port into a listen address.
func (s StatusConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// BenchConfig contains defaults for the REST performance harness.
type BenchConfig struct {
	Model     string  `toml:"model"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveToken returns the bearer token from, in order, the environment, the inline config value, or the token file.
//
// An empty result is not an error here; the session treats it as [ErrAuth] at connect time.
func (c *Config) ResolveToken() (string, error) {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		return tok, nil
	}
	if tok := strings.TrimSpace(c.Credentials.Token); tok != "" {
		return tok, nil
	}
	if c.Credentials.TokenFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(c.Credentials.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}
