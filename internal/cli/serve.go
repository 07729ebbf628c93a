package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// Client allows overriding the results gateway client (for testing).
	// If nil, an HTTP client for external.base_url is used.
	Client external.Client

	// Holders allows overriding the lock holder generator (for testing).
	// If nil, defaults to lock.UUIDv7Generator.
	Holders lock.HolderGenerator

	// ready, if set, receives the bound address once listening (for testing).
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the notification HTTP endpoint",
		Long: `Start the HTTP server that accepts completion notifications.

The server opens the SQLite database (creating it if it doesn't exist),
connects the configured lock backend, and serves until interrupted.

Example:
  recon serve --config recon.yaml
  recon serve --db /tmp/recon.db --addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.setupLogging(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load config", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	var appOpts []appOption
	if opts.Client != nil {
		appOpts = append(appOpts, withExternalClient(opts.Client))
	}
	if opts.Holders != nil {
		appOpts = append(appOpts, withHolderGenerator(opts.Holders))
	}
	a, err := buildApp(cfg, logger, appOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to start", err)
	}
	defer a.Close()

	srv := server.New(server.Deps{
		Reconciler:  a.engine,
		Assignments: a.store,
		Blobs:       a.artifacts,
		Verifier:    a.signer,
		Health:      a.store,
		Logger:      logger,
	})

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to listen", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	if err := srv.Serve(ctx, ln); err != nil {
		return formatter.Fail(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
