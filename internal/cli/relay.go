package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ADITIII0201/kith/internal/relay"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Listen string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the sync relay hub",
		Long: `Run the WebSocket relay that fans frames out between replicas.

Replicas connect at /sync?doc=<id>; frames are forwarded verbatim to
the other subscribers of the same document.

Example:
  kith relay
  kith relay --listen :9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8737", "listen address")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	hub := relay.NewHub()
	srv := &http.Server{
		Addr:    opts.Listen,
		Handler: hub.Handler(),
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	slog.Info("relay starting", "addr", opts.Listen)
	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s. Press Ctrl-C to stop.\n", opts.Listen)

	select {
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "relay server error", err)
	case <-ctx.Done():
	}

	// Drop the subscribers first so their read loops end, then stop the
	// listener. Shutdown does not wait for hijacked connections.
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("relay shutdown incomplete", "error", err)
	}
	<-serveErr

	slog.Info("relay stopped gracefully")
	return nil
}
