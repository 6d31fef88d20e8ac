package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/logging"
	"evalgo.org/nodelink/internal/metrics"
	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/services"
	"evalgo.org/nodelink/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	cfg       *config.Config
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nodelink",
	Short: "Panel-side client for game server node agents",
	Long: `nodelink talks to the node agents that run game servers on behalf of
the panel.

It mints short-lived capability tokens signed with each node's secret, calls
the node agent REST API, and keeps WebSocket console sessions alive across
token expiry and network drops.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./nodelink.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "%s" .Version}}
`)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger = logging.Setup(cfg.Logging)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, info.String())

		if cmd.Flag("verbose").Changed {
			fmt.Fprintf(out, "\nDetails:\n")
			fmt.Fprintf(out, "  Version:    %s\n", info.Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "  Platform:   %s\n", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "verbose version output")
}

// newRegistry builds the node registry from the loaded configuration.
func newRegistry() *node.Registry {
	return node.NewRegistry(cfg)
}

// newAuthority builds a token authority; rec may be nil.
func newAuthority(reg *node.Registry, rec *metrics.Recorder) *node.Authority {
	opts := []node.AuthorityOption{
		node.WithPanelURL(cfg.Panel.URL),
		node.WithTokenLifetime(cfg.Tokens.Lifetime),
	}
	if rec != nil {
		opts = append(opts, node.WithIssueObserver(rec.TokenIssued))
	}
	return node.NewAuthority(reg, reg, opts...)
}

// daemonOptions are shared by every node agent client the CLI creates.
func daemonOptions(rec *metrics.Recorder) []daemon.Option {
	opts := []daemon.Option{
		daemon.WithLogger(logger),
		daemon.WithUserAgent(version.UserAgent(cfg.Panel.Name)),
	}
	if rec != nil {
		opts = append(opts, daemon.WithObserver(rec))
	}
	return opts
}

// adminServices returns callers authenticated with the node secret of the
// node hosting server.
func adminServices(cmd *cobra.Command, server string) (*services.Set, error) {
	t, err := newRegistry().TargetForServer(cmd.Context(), server)
	if err != nil {
		return nil, err
	}
	return services.New(daemon.New(t, daemonOptions(nil)...)), nil
}

// nodeServices returns callers for a node by id.
func nodeServices(cmd *cobra.Command, id string) (*services.Set, node.Target, error) {
	t, err := newRegistry().Target(cmd.Context(), id)
	if err != nil {
		return nil, node.Target{}, err
	}
	return services.New(daemon.New(t, daemonOptions(nil)...)), t, nil
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
