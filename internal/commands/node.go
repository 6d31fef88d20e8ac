package commands

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/services"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect and configure node agents",
}

var nodeInfoCmd = &cobra.Command{
	Use:   "info [node]",
	Short: "Show node agent system information",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeInfo,
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check every configured node in parallel",
	RunE:  runNodeStatus,
}

var nodeConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or patch the node agent configuration",
}

var nodeConfigGetCmd = &cobra.Command{
	Use:   "get [node] [key]",
	Short: "Print the node configuration or one dotted key",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runNodeConfigGet,
}

var nodeConfigPatchCmd = &cobra.Command{
	Use:   "patch [node] key=value...",
	Short: "Patch dotted configuration keys",
	Long: `Patch dotted configuration keys on a node agent.

Values are parsed as YAML scalars, so "true", "8080" and "1.5" keep their
types. Example:
  nodelink node config patch node1 api.port=8443 system.debug=true --restart`,
	Args: cobra.MinimumNArgs(2),
	RunE: runNodeConfigPatch,
}

var (
	nodeDetailed   bool
	nodeConcurrent int
	nodeRestart    bool
)

func init() {
	nodeInfoCmd.Flags().BoolVar(&nodeDetailed, "detailed", true, "request detailed (v2) system information")
	nodeStatusCmd.Flags().IntVar(&nodeConcurrent, "concurrency", 8, "maximum nodes checked at once")
	nodeConfigPatchCmd.Flags().BoolVar(&nodeRestart, "restart", false, "restart the node agent after patching")

	nodeConfigCmd.AddCommand(nodeConfigGetCmd)
	nodeConfigCmd.AddCommand(nodeConfigPatchCmd)

	nodeCmd.AddCommand(nodeInfoCmd)
	nodeCmd.AddCommand(nodeStatusCmd)
	nodeCmd.AddCommand(nodeConfigCmd)
}

func runNodeInfo(cmd *cobra.Command, args []string) error {
	set, _, err := nodeServices(cmd, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, set.System.Info(cmd.Context(), nodeDetailed))
}

// nodeStatus is one row of the status table.
type nodeStatus struct {
	id      string
	url     string
	version string
	latency time.Duration
	err     string
}

func runNodeStatus(cmd *cobra.Command, args []string) error {
	targets, err := newRegistry().Targets(cmd.Context())
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no nodes configured")
	}

	rows := make([]nodeStatus, len(targets))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(nodeConcurrent)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			start := time.Now()
			res := services.New(daemon.New(t, daemonOptions(nil)...)).System.Info(ctx, false)

			row := nodeStatus{id: t.ID, url: t.BaseURL(), latency: time.Since(start)}
			if res.Success {
				if m, ok := res.Data.(map[string]any); ok {
					row.version, _ = m["version"].(string)
				}
			} else {
				row.err = res.Error
			}

			mu.Lock()
			rows[i] = row
			mu.Unlock()
			return nil
		})
	}
	// per-node failures are reported in the table, not as an error
	_ = g.Wait()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tURL\tSTATUS\tVERSION\tLATENCY")
	failed := 0
	for _, r := range rows {
		status := "up"
		if r.err != "" {
			status = "down: " + r.err
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.id, r.url, status, r.version, r.latency.Round(time.Millisecond))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d nodes unreachable", failed, len(rows))
	}
	return nil
}

func runNodeConfigGet(cmd *cobra.Command, args []string) error {
	set, _, err := nodeServices(cmd, args[0])
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return printResult(cmd, set.Config.Get(cmd.Context()))
	}

	doc, res := set.Config.Parsed(cmd.Context())
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	v, ok := services.Lookup(doc, args[1])
	if !ok {
		return fmt.Errorf("key %q not found", args[1])
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runNodeConfigPatch(cmd *cobra.Command, args []string) error {
	updates, err := parseUpdates(args[1:])
	if err != nil {
		return err
	}

	set, _, err := nodeServices(cmd, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, set.Config.Patch(cmd.Context(), updates, nodeRestart))
}

// parseUpdates turns key=value pairs into a patch map with YAML-typed values.
func parseUpdates(pairs []string) (map[string]any, error) {
	updates := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid update %q, want key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		updates[key] = v
	}
	return updates, nil
}
