// Package config provides configuration management for nodelink.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with NL_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./nodelink.yaml, ./configs/nodelink.yaml, ~/.nodelink/nodelink.yaml, /etc/nodelink/nodelink.yaml)
//  3. .env files
//  4. Environment variables (NL_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/nodelink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Panel: %s\n", cfg.Panel.URL)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use NL_ prefix and underscores for nested keys:
//   - NL_SERVER_PORT=8095
//   - NL_TOKENS_LIFETIME=10m
//   - NL_SESSION_RECONNECT_DELAY=5s
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"evalgo.org/nodelink/internal/validation"
)

// Config is the root configuration structure for nodelink.
type Config struct {
	// Panel identifies this panel towards node agents (token issuer, WebSocket origin)
	Panel PanelConfig `mapstructure:"panel" yaml:"panel"`

	// Tokens contains capability token settings
	Tokens TokenConfig `mapstructure:"tokens" yaml:"tokens"`

	// Session contains WebSocket session settings
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Nodes lists the node agents this panel talks to
	Nodes []NodeConfig `mapstructure:"nodes" yaml:"nodes" validate:"dive"`

	// Servers maps server UUIDs to the node hosting them
	Servers []ServerConfig `mapstructure:"servers" yaml:"servers" validate:"dive"`

	// Grants lists the capability strings each user holds on a server
	Grants []GrantConfig `mapstructure:"grants" yaml:"grants" validate:"dive"`

	// Server contains HTTP API server configuration
	Server ServerListenConfig `mapstructure:"server" yaml:"server"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Security contains API authentication and rate limiting settings
	Security SecurityConfig `mapstructure:"security" yaml:"security"`
}

// PanelConfig describes the panel itself.
type PanelConfig struct {
	// URL is the public panel URL; used as token issuer and WebSocket Origin
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	// Name is a display name reported in the User-Agent header
	Name string `mapstructure:"name" yaml:"name"`
}

// TokenConfig contains capability token settings.
type TokenConfig struct {
	// Lifetime is how long an issued token stays valid (default: 600s)
	Lifetime time.Duration `mapstructure:"lifetime" yaml:"lifetime" validate:"gt=0"`
}

// SessionConfig contains WebSocket session settings.
type SessionConfig struct {
	// ReconnectDelay is the fixed delay before a reconnect attempt (default: 5s)
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay" validate:"gt=0"`

	// HandshakeTimeout bounds the WebSocket upgrade (default: 10s)
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`

	// WriteWait is the time allowed to write a message to the daemon (default: 10s)
	WriteWait time.Duration `mapstructure:"write_wait" yaml:"write_wait"`

	// PongWait is the time allowed to read the next pong (default: 60s)
	PongWait time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
}

// NodeConfig holds the connection coordinates of one node agent.
type NodeConfig struct {
	// ID is the node identifier referenced by servers
	ID string `mapstructure:"id" yaml:"id" validate:"required"`

	// Name is a display name
	Name string `mapstructure:"name" yaml:"name"`

	// Scheme is http or https
	Scheme string `mapstructure:"scheme" yaml:"scheme" validate:"omitempty,oneof=http https"`

	// Host is the node agent hostname or IP
	Host string `mapstructure:"host" yaml:"host" validate:"required"`

	// Port is the node agent API port (default: 8080)
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`

	// Secret is the shared secret used as bearer and token signing key
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required"`

	// Timeout is the request timeout for REST calls (default: 30s)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig maps a server to its node.
type ServerConfig struct {
	UUID string `mapstructure:"uuid" yaml:"uuid" validate:"required"`
	Node string `mapstructure:"node" yaml:"node" validate:"required"`
}

// GrantConfig lists the capabilities of one user on one server.
type GrantConfig struct {
	User        string   `mapstructure:"user" yaml:"user" validate:"required"`
	Server      string   `mapstructure:"server" yaml:"server" validate:"required"`
	Permissions []string `mapstructure:"permissions" yaml:"permissions" validate:"dive,capability"`
}

// ServerListenConfig contains HTTP API server configuration.
type ServerListenConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the server listen port (default: 8095)
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Debug enables debug logging and detailed error responses
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// TLSEnabled enables HTTPS
	TLSEnabled bool `mapstructure:"tls_enabled" yaml:"tls_enabled"`

	// TLSCert is the path to the TLS certificate file
	TLSCert string `mapstructure:"tls_cert" yaml:"tls_cert"`

	// TLSKey is the path to the TLS private key file
	TLSKey string `mapstructure:"tls_key" yaml:"tls_key"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}

// APIKeyConfig binds a bcrypt-hashed API key to a panel user.
type APIKeyConfig struct {
	User string `mapstructure:"user" yaml:"user" validate:"required"`
	Hash string `mapstructure:"hash" yaml:"hash" validate:"required"`

	// Role granted to requests made with the key (default: user)
	Role string `mapstructure:"role" yaml:"role,omitempty" validate:"omitempty,oneof=admin user viewer"`
}

// SecurityConfig contains security and rate limiting settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// AuthEnabled enables authentication on the panel API
	AuthEnabled bool `mapstructure:"auth_enabled" yaml:"auth_enabled"`

	// JWTSecret signs panel session tokens (not node capability tokens)
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// JWTExpiration is the panel session token lifetime (default: 24h)
	JWTExpiration time.Duration `mapstructure:"jwt_expiration" yaml:"jwt_expiration"`

	// APIKeys are hashed API keys accepted via the X-API-Key header
	APIKeys []APIKeyConfig `mapstructure:"api_keys" yaml:"api_keys" validate:"dive"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for nodelink.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NL_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("nodelink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.nodelink")
		v.AddConfigPath("/etc/nodelink")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			// An explicit file that does not exist falls back to defaults
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("NL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	applyNodeDefaults(loaded)

	if err := validate(loaded); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = loaded
	return loaded, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("panel.url", "http://localhost:8095")
	v.SetDefault("panel.name", "nodelink")

	v.SetDefault("tokens.lifetime", "600s")

	v.SetDefault("session.reconnect_delay", "5s")
	v.SetDefault("session.handshake_timeout", "10s")
	v.SetDefault("session.write_wait", "10s")
	v.SetDefault("session.pong_wait", "60s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.tls_enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.jwt_secret", "change-me-in-production")
	v.SetDefault("security.jwt_expiration", "24h")
}

// applyNodeDefaults fills per-node defaults that viper cannot express for
// list elements.
func applyNodeDefaults(c *Config) {
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.Scheme == "" {
			n.Scheme = "http"
		}
		if n.Port == 0 {
			n.Port = 8080
		}
		if n.Timeout <= 0 {
			n.Timeout = 30 * time.Second
		}
	}
}

func validate(c *Config) error {
	if err := validation.New().Struct(c); err != nil {
		return err
	}

	nodes := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if nodes[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		nodes[n.ID] = true
	}

	for _, s := range c.Servers {
		if !nodes[s.Node] {
			return fmt.Errorf("server %s references unknown node %s", s.UUID, s.Node)
		}
	}

	return nil
}

// Get returns the most recently loaded configuration.
func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
