// Package main provides the unified checkrelay CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"checkrelay/src/broker"
	"checkrelay/src/checks"
	"checkrelay/src/config"
	"checkrelay/src/logger"
	"checkrelay/src/logscan"
	"checkrelay/src/mcp"
	"checkrelay/src/reconcile"
	"checkrelay/src/relay"
	"checkrelay/src/store"
	"checkrelay/src/travis"
	"checkrelay/src/tui"
	"checkrelay/src/webhook"
)

// shutdownTimeout bounds draining of in-flight webhook requests.
const shutdownTimeout = 10 * time.Second

var (
	appConfig *config.Config
	verbose   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "checkrelay",
	Short: "Checkrelay - mirrors CI build status onto GitHub check runs",
	Long: `Checkrelay receives build notifications from Travis CI, fetches the
build's job states, and keeps one GitHub check run per labeled job in
sync with them.

It supports two modes:
- Single process (default): webhook intake and relay agent share an
  in-memory broker
- Distributed: intake publishes to Redpanda and 'checkrelay agent'
  processes consume, with snapshots in Postgres

Mode is auto-detected based on the REDPANDA_BROKERS environment variable.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
	},
}

// serveCmd runs the webhook intake, plus the relay agent in single-process mode
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook intake",
	Long: `Run the HTTP intake that accepts Travis CI webhook notifications.

Single process (default): build events stay in-process and the relay
agent reconciles them against GitHub as they arrive.

Distributed: with REDPANDA_BROKERS set, events are published to Redpanda
and this process only ingests. Run 'checkrelay agent' separately.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewConsoleLogger(verbose)
		distributed := len(appConfig.RedpandaBrokers) > 0

		if !distributed {
			if err := appConfig.RequireGitHub(); err != nil {
				fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
				os.Exit(1)
			}
		}

		st, err := newStore(appConfig, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open snapshot store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		var brk broker.Broker
		if distributed {
			brk, err = broker.NewRedpandaBroker(appConfig.RedpandaBrokers, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create broker: %v\n", err)
				os.Exit(1)
			}
		} else {
			brk = broker.NewInMemoryBroker()
		}
		defer brk.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info("Shutdown signal received, stopping...")
			cancel()
		}()

		intake := webhook.NewServer(brk, appConfig.Domain, log)
		httpServer := &http.Server{Addr: appConfig.ListenAddr, Handler: intake.Router()}

		g, gctx := errgroup.WithContext(ctx)

		if distributed {
			log.Info("Distributed mode, run 'checkrelay agent' to reconcile events")
		} else {
			agent := buildAgent(appConfig, brk, st, log)
			g.Go(func() error {
				if err := agent.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		g.Go(func() error {
			log.Info("Webhook intake listening on %s", appConfig.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "Serve error: %v\n", err)
			os.Exit(1)
		}

		log.Info("Shutdown complete")
	},
}

// agentCmd runs a standalone relay agent for distributed mode
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a standalone relay agent",
	Long: `Consume build events from Redpanda and reconcile GitHub check runs.

Multiple agents share the consumer group; events are keyed by build, so
each build is owned by exactly one agent at a time. Snapshots should live
in Postgres (DATABASE_URL) so any agent can pick up any build.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(appConfig.RedpandaBrokers) == 0 {
			fmt.Fprintln(os.Stderr, "ERROR: REDPANDA_BROKERS environment variable is required for the relay agent")
			fmt.Fprintln(os.Stderr, "Example: export REDPANDA_BROKERS=localhost:19092")
			os.Exit(1)
		}
		if err := appConfig.RequireGitHub(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		log := logger.NewConsoleLogger(verbose)
		log.Info("Starting relay agent")
		log.Info("Redpanda brokers: %v", appConfig.RedpandaBrokers)

		st, err := newStore(appConfig, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open snapshot store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		brk, err := broker.NewRedpandaBroker(appConfig.RedpandaBrokers, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create broker: %v\n", err)
			os.Exit(1)
		}
		defer brk.Close()

		agent := buildAgent(appConfig, brk, st, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info("Shutdown signal received, stopping agent...")
			cancel()
		}()

		if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Agent error: %v\n", err)
			os.Exit(1)
		}

		log.Info("Relay agent stopped")
	},
}

// statusCmd opens the dashboard over the snapshot store
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked builds in a terminal dashboard",
	Long: `Browse the builds the relay is tracking and the check state of each job.

This command reads the shared Postgres store, so DATABASE_URL must be
set. In single-process mode snapshots live inside the serve process and
are not visible from here.`,
	Run: func(cmd *cobra.Command, args []string) {
		if appConfig.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL environment variable is required for the status command")
			os.Exit(1)
		}

		st, err := store.NewPostgresStore(appConfig.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := tui.Start(st); err != nil {
			fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
			os.Exit(1)
		}
	},
}

// mcpCmd serves the build memory over MCP on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve build memory over the Model Context Protocol",
	Long: `Expose list_builds, get_build, and forget_build tools on stdio for
operator tooling.

Reads the shared Postgres store, so DATABASE_URL must be set.`,
	Run: func(cmd *cobra.Command, args []string) {
		if appConfig.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL environment variable is required for the mcp command")
			os.Exit(1)
		}

		st, err := store.NewPostgresStore(appConfig.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := mcp.NewServer(st).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
	},
}

// newStore opens the snapshot store selected by the configuration.
func newStore(cfg *config.Config, log logger.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		log.Info("Using Postgres snapshot store")
		st, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.SetLogger(log)
		return st, nil
	}
	log.Info("Using in-memory snapshot store")
	st := store.NewMemoryStore()
	st.SetLogger(log)
	return st, nil
}

// buildAgent wires the provider client, log fetcher, and checks client into
// a relay agent.
func buildAgent(cfg *config.Config, brk broker.Broker, st store.Store, log logger.Logger) *relay.Agent {
	travisClient := travis.NewClient(cfg.TravisAPIHost, cfg.TravisToken)
	source := travis.NewSource(travisClient, log)

	fetcher := logscan.NewFetcher(travisClient, log)
	fetcher.Timeout = cfg.LogTimeout
	fetcher.Attempts = cfg.LogAttempts
	fetcher.Backoff = cfg.LogBackoff

	checksClient := checks.NewClient(cfg.GitHubToken)
	publisher := reconcile.NewPublisher(checksClient, fetcher, log)

	agent := relay.NewAgent(brk, source, publisher, st, log)
	agent.EnableRecovery(checksClient, cfg.GitHubAppID)
	agent.SetPendingLimit(cfg.PendingLimit)
	return agent
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
