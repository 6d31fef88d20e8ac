package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"evalgo.org/nodelink/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration with secrets redacted",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInitConfig,
}

var initForce bool

func init() {
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

const redacted = "********"

// redact returns a copy of c without secrets.
func redact(c config.Config) config.Config {
	nodes := make([]config.NodeConfig, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Secret != "" {
			n.Secret = redacted
		}
		nodes[i] = n
	}
	c.Nodes = nodes

	keys := make([]config.APIKeyConfig, len(c.Security.APIKeys))
	for i, k := range c.Security.APIKeys {
		k.Hash = redacted
		keys[i] = k
	}
	c.Security.APIKeys = keys
	if c.Security.JWTSecret != "" {
		c.Security.JWTSecret = redacted
	}
	return c
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(redact(*cfg))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// defaultConfig is the starting point written by config init.
func defaultConfig() config.Config {
	return config.Config{
		Panel:   config.PanelConfig{URL: "https://panel.example.com", Name: "nodelink"},
		Tokens:  config.TokenConfig{Lifetime: 600 * time.Second},
		Session: config.SessionConfig{ReconnectDelay: 5 * time.Second, HandshakeTimeout: 10 * time.Second, WriteWait: 10 * time.Second, PongWait: 60 * time.Second},
		Nodes: []config.NodeConfig{
			{ID: "node1", Name: "Node 1", Scheme: "https", Host: "node1.example.com", Port: 8080, Secret: "change-me", Timeout: 30 * time.Second},
		},
		Servers: []config.ServerConfig{{UUID: "00000000-0000-0000-0000-000000000000", Node: "node1"}},
		Grants: []config.GrantConfig{
			{User: "admin", Server: "00000000-0000-0000-0000-000000000000", Permissions: []string{"*"}},
		},
		Server: config.ServerListenConfig{
			Host: "0.0.0.0", Port: 8095,
			ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, ShutdownTimeout: 10 * time.Second,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
		Security: config.SecurityConfig{
			RateLimit:      100,
			AllowedOrigins: []string{"*"},
			JWTSecret:      "change-me-in-production",
			JWTExpiration:  24 * time.Hour,
		},
	}
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := "nodelink.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	content := append([]byte("# nodelink configuration\n\n"), data...)

	if err := os.WriteFile(path, content, 0600); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created: %s\n", path)
	return nil
}
