// Package cli implements the scipguard command-line driving adapter.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/scipguard/internal/adapter/driven/scipapi"
	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/config"
)

// globalFlags are the persistent flags shared by every command. Set flags
// override the matching SCIPGUARD_ environment variables.
type globalFlags struct {
	serverURL    string
	backend      string
	dbPath       string
	sessionFile  string
	pollInterval time.Duration
	output       string
	verbose      bool
}

// app carries the streams and the dependencies built for one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	lines  *bufio.Reader

	flags globalFlags

	cfg     *config.Config
	logger  *slog.Logger
	api     *scipapi.Client
	store   *application.SessionStore
	closers []func() error
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		flags:  globalFlags{output: "text"},
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scipguard",
		Short: "Client for the SCIP commit analysis server",
		Long: `scipguard signs in to a SCIP analysis server, keeps the session on disk,
and shows the audit log of analyzed commits.

Run "scipguard dashboard" for a local web dashboard that refreshes the log
every few seconds.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.serverURL, "server", "", "Analysis server URL (env: SCIPGUARD_SERVER_URL)")
	pf.StringVar(&a.flags.backend, "backend", "", "Session backend: sqlite, redis, file (env: SCIPGUARD_SESSION_BACKEND)")
	pf.StringVar(&a.flags.dbPath, "db", "", "SQLite session database path (env: SCIPGUARD_DB_PATH)")
	pf.StringVar(&a.flags.sessionFile, "session-file", "", "Session file path for the file backend (env: SCIPGUARD_SESSION_FILE)")
	pf.DurationVar(&a.flags.pollInterval, "poll-interval", 0, "Pause between log fetches (env: SCIPGUARD_POLL_INTERVAL)")
	pf.StringVarP(&a.flags.output, "output", "o", a.flags.output, "Output format: text, json")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newRegisterCmd(a))
	rootCmd.AddCommand(newLogoutCmd(a))
	rootCmd.AddCommand(newWhoamiCmd(a))
	rootCmd.AddCommand(newLogsCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newAnalyzeCmd(a))
	rootCmd.AddCommand(newDashboardCmd(a))
	rootCmd.AddCommand(newHealthCmd(a))

	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()

	if err != nil {
		a.output().PrintError(err)
		return 1
	}
	return 0
}

// setup loads configuration, opens the session backend and restores the
// session. Every command runs with a restored SessionStore.
func (a *app) setup(cmd *cobra.Command) error {
	switch a.flags.output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q: use text or json", a.flags.output)
	}

	level := slog.LevelWarn
	if a.flags.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	flags := cmd.Flags()
	cfg, err := config.Load(func(c *config.Config) {
		if flags.Changed("server") {
			c.ServerURL = a.flags.serverURL
		}
		if flags.Changed("backend") {
			c.SessionBackend = config.SessionBackend(a.flags.backend)
		}
		if flags.Changed("db") {
			c.DBPath = a.flags.dbPath
		}
		if flags.Changed("session-file") {
			c.SessionFile = a.flags.sessionFile
		}
		if flags.Changed("poll-interval") {
			c.PollInterval = a.flags.pollInterval
		}
		if flags.Changed("listen") {
			if addr, err := flags.GetString("listen"); err == nil {
				c.ListenAddr = addr
			}
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("config loaded",
		"server_url", cfg.ServerURL,
		"session_backend", cfg.SessionBackend,
		"poll_interval", cfg.PollInterval,
	)

	kv, closeKV, err := openSessionKV(cmd.Context(), cfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeKV)

	api, err := scipapi.NewClient(cfg.ServerURL, cfg.HTTPTimeout, a.logger)
	if err != nil {
		return err
	}
	a.api = api

	a.store = application.NewSessionStore(api, kv, a.logger)
	state := a.store.Restore(cmd.Context())
	a.logger.Debug("session restored", "state", state)

	return nil
}

// close releases resources opened by setup in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) output() *Output {
	return NewOutput(a.flags.output, a.stdout, a.stderr)
}

// errNotLoggedIn is returned by commands that need a credential.
var errNotLoggedIn = errors.New(`not logged in: run "scipguard login" first`)

// requireSession fails with errNotLoggedIn unless the session is authenticated.
func (a *app) requireSession() error {
	if !a.store.Current().Authenticated() {
		return errNotLoggedIn
	}
	return nil
}
