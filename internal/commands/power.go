package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"evalgo.org/nodelink/models"
)

var powerCmd = &cobra.Command{
	Use:   "power [server] [start|stop|restart|kill]",
	Short: "Send a power signal to a server",
	Args:  cobra.ExactArgs(2),
	RunE:  runPower,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Browse server files",
}

var listFilesCmd = &cobra.Command{
	Use:   "ls [server] [directory]",
	Short: "List a server directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runListFiles,
}

func init() {
	filesCmd.AddCommand(listFilesCmd)
}

// printResult prints a call result and turns failures into errors.
func printResult(cmd *cobra.Command, res models.CallResult) error {
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	if res.Data == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	if text, ok := res.Data.(string); ok {
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}
	return printJSON(cmd.OutOrStdout(), res.Data)
}

func runPower(cmd *cobra.Command, args []string) error {
	signal := models.PowerSignal(strings.ToLower(args[1]))
	if !signal.Valid() {
		return fmt.Errorf("unknown power signal %q", args[1])
	}

	set, err := adminServices(cmd, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, set.Servers.Power(cmd.Context(), args[0], signal))
}

func runListFiles(cmd *cobra.Command, args []string) error {
	dir := "/"
	if len(args) == 2 {
		dir = args[1]
	}

	set, err := adminServices(cmd, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, set.Files.List(cmd.Context(), args[0], dir))
}
