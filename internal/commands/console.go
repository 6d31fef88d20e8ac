package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"evalgo.org/nodelink/internal/metrics"
	"evalgo.org/nodelink/internal/session"
	"evalgo.org/nodelink/models"
	"evalgo.org/nodelink/pkg/nodelink/client"
)

var consoleCmd = &cobra.Command{
	Use:   "console [server]",
	Short: "Attach to a server console",
	Long: `Open a WebSocket session to the node hosting a server and stream its console.

Lines typed on stdin are sent as console commands. Lines starting with ":"
are local commands:
  :start :stop :restart :kill   send a power signal
  :stats                        request a stats snapshot
  :logs                         replay recent console output
  :quit                         close the session

Tokens are minted locally from the node secret unless --panel is set, in
which case they are requested from a nodelink API server.`,
	Args: cobra.ExactArgs(1),
	RunE: runConsole,
}

var (
	consoleUser    string
	consolePanel   string
	consoleAPIKey  string
	consoleMetrics string
)

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "user", "", "acting user UUID (required)")
	consoleCmd.Flags().StringVar(&consolePanel, "panel", "", "nodelink API URL to request tokens from")
	consoleCmd.Flags().StringVar(&consoleAPIKey, "api-key", "", "API key for --panel")
	consoleCmd.Flags().StringVar(&consoleMetrics, "metrics-addr", "", "serve session metrics on this address (e.g. :9464)")
	_ = consoleCmd.MarkFlagRequired("user")
}

func runConsole(cmd *cobra.Command, args []string) error {
	server := args[0]
	out := cmd.OutOrStdout()

	provider, err := metrics.NewProvider()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()
	rec, err := metrics.NewRecorder(provider.MeterProvider(), "nodelink")
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	var source session.TokenSource
	if consolePanel != "" {
		c, err := client.New(consolePanel, client.WithAPIKey(consoleAPIKey), client.WithUser(consoleUser))
		if err != nil {
			return err
		}
		source = c.TokenSource(server)
	} else {
		reg := newRegistry()
		source = session.AuthoritySource{Authority: newAuthority(reg, rec), User: consoleUser, Server: server}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if consoleMetrics != "" {
		srv := metricsServer(provider)
		go func() {
			if err := srv.Start(consoleMetrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	sess := newConsoleSession(server, source, out, rec)
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := consoleInput(sess, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// newConsoleSession builds the session used by the console command. Session
// events are counted on rec.
func newConsoleSession(server string, source session.TokenSource, out io.Writer, rec *metrics.Recorder) *session.Client {
	opts := []session.Option{
		session.WithOrigin(cfg.Panel.URL),
		session.WithReconnectDelay(cfg.Session.ReconnectDelay),
		session.WithHandshakeTimeout(cfg.Session.HandshakeTimeout),
		session.WithKeepalive(cfg.Session.WriteWait, cfg.Session.PongWait),
		session.WithHandlers(consoleHandlers(out)),
		session.WithObserver(rec),
	}
	if logger != nil {
		opts = append(opts, session.WithLogger(logger))
	}
	return session.New(server, source, opts...)
}

// metricsServer exposes the console's metrics registry.
func metricsServer(provider *metrics.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(provider.Handler()))
	return e
}

func consoleHandlers(out io.Writer) session.Handlers {
	return session.Handlers{
		ConsoleOutput: func(line string) { fmt.Fprintln(out, line) },
		InstallOutput: func(line string) { fmt.Fprintln(out, "[install] "+line) },
		TransferLogs:  func(line string) { fmt.Fprintln(out, "[transfer] "+line) },
		Status:        func(status string) { fmt.Fprintf(out, "* server is %s\n", status) },
		Stats: func(s *models.Stats) {
			if s == nil {
				return
			}
			fmt.Fprintf(out, "* %s cpu=%.1f%% mem=%d/%d disk=%d\n",
				s.State, s.CPUAbsolute, s.MemoryBytes, s.MemoryLimitBytes, s.DiskBytes)
		},
		Latency:     func(rtt time.Duration) { fmt.Fprintf(out, "* latency %s\n", rtt.Round(time.Millisecond)) },
		DaemonError: func(msg string) { fmt.Fprintf(out, "! daemon error: %s\n", msg) },
		StateChange: func(s session.State) { fmt.Fprintf(out, "* session %s\n", s) },
	}
}

// readLines forwards stdin lines until EOF. It is not stopped on exit; the
// process ends right after.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// consoleInput handles one stdin line and reports whether to quit.
func consoleInput(sess *session.Client, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, sess.SendCommand(line)
	}

	switch cmd := strings.TrimPrefix(line, ":"); cmd {
	case "quit", "q":
		return true, nil
	case "stats":
		return false, sess.RequestStats()
	case "logs":
		return false, sess.RequestLogs()
	case "reconnect":
		sess.Reconnect()
		return false, nil
	default:
		sig := models.PowerSignal(cmd)
		if !sig.Valid() {
			return false, errors.New("unknown command " + line)
		}
		return false, sess.SendPowerAction(sig)
	}
}
