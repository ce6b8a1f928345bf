package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ADITIII0201/kith/internal/directory"
	"github.com/ADITIII0201/kith/internal/engine"
	"github.com/ADITIII0201/kith/internal/replica"
	"github.com/ADITIII0201/kith/internal/session"
	"github.com/ADITIII0201/kith/internal/snapshot"
	"github.com/ADITIII0201/kith/internal/suggest"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Config string
	User   string

	// Dialer overrides the relay transport (for testing). If nil, the
	// WebSocket dialer against the configured relay URL is used.
	Dialer session.Dialer
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a replica against the relay",
		Long: `Run one replica of a user's document: the suggestion engine plus a
sync session against the configured relay.

The replica loads its document from the snapshot store, pushes a full
snapshot when the relay accepts it, merges deltas from other replicas,
and persists after every change. Stop it with Ctrl-C.

Example:
  kith sync --user u-ada
  kith sync --config kith.yaml --user u-ada --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.User, "user", "", "user whose document to replicate (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Info("opening directory", "path", cfg.Directory.DB)
	dir, err := directory.OpenSQLite(cfg.Directory.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open directory", err)
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			slog.Error("error closing directory", "error", closeErr)
		}
	}()

	store, closeStore, err := openSnapshotStore(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open snapshot store", err)
	}
	defer closeStore()

	bridge := snapshot.NewBridge(store, snapshot.WithRetryDelay(cfg.Snapshot.RetryDelay.Std()))
	doc := bridge.Load(snapshot.Key(opts.User))
	slog.Info("document loaded", "user", opts.User, "actor", doc.Actor(),
		"dismissed", len(doc.Dismissed()), "pending", len(doc.Pending()))

	dialer := opts.Dialer
	if dialer == nil {
		dialer = session.WebSocketDialer(cfg.Session.RelayURL)
	}

	// The session's callbacks close over eng; both loops start only
	// after it is assigned below.
	var eng *engine.Engine
	backend := session.New(
		session.Config{
			DocID:          opts.User,
			ConnectTimeout: cfg.Session.ConnectTimeout.Std(),
			RetryInterval:  cfg.Session.RetryInterval.Std(),
			MaxRetryDelay:  cfg.Session.MaxRetryDelay.Std(),
		},
		dialer,
		func(raw []byte) { eng.SubmitRemote(raw) },
		func() *replica.Delta { return eng.Snapshot() },
	)

	out := cmd.OutOrStdout()
	eng = engine.New(opts.User, doc, dir,
		engine.WithBridge(bridge),
		engine.WithBackend(backend),
		engine.WithRanker(suggest.NewRanker(
			suggest.WithWeights(cfg.Weights),
			suggest.WithLimit(cfg.Suggestions.Limit),
		)),
		engine.WithSender(engine.NewSimulatedSender(cfg.Connect.Latency.Std(), cfg.Connect.FailureRate)),
		engine.WithPresenter(func(ranked []suggest.ScoredCandidate) {
			fmt.Fprintf(out, "suggestions refreshed: %d candidate(s)\n", len(ranked))
			for i, s := range ranked {
				if i == 3 {
					break
				}
				fmt.Fprintf(out, "  %d. %s (%.3f)\n", i+1, s.User.Name, s.Score)
			}
		}),
	)

	// Graceful shutdown on SIGINT/SIGTERM.
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

	slog.Info("replica starting", "user", opts.User, "relay", cfg.Session.RelayURL)
	fmt.Fprintln(out, "Replica running. Press Ctrl-C to stop.")

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- backend.Run(ctx) }()

	err = eng.Run(ctx)
	cancel()
	if serr := <-sessionErr; serr != nil && !errors.Is(serr, context.Canceled) {
		slog.Warn("session loop error", "error", serr)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "replica error", err)
	}

	slog.Info("replica stopped gracefully")
	return nil
}
