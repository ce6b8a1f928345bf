package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ADITIII0201/kith/internal/config"
	"github.com/ADITIII0201/kith/internal/snapshot"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kith CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kith",
		Short: "kith - people you may know",
		Long: `A local-first "people you may know" engine.

kith ranks suggestion candidates from a social graph, keeps the user's
dismissals and pending requests in a replicated document, and syncs
that document between devices through a relay.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewRankCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRelayCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// configureLogging installs the process logger on stderr. Debug level
// when verbose.
func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig resolves the effective config: the file when --config is
// set, the defaults otherwise.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openSnapshotStore opens the configured snapshot store: Badger when a
// directory is set, in-memory otherwise.
func openSnapshotStore(cfg config.Config) (snapshot.Store, func(), error) {
	if cfg.Snapshot.Dir == "" {
		return snapshot.NewMemoryStore(), func() {}, nil
	}
	store, err := snapshot.OpenBadger(snapshot.BadgerConfig{
		Path:       cfg.Snapshot.Dir,
		SyncWrites: true,
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if cerr := store.Close(); cerr != nil {
			slog.Error("error closing snapshot store", "error", cerr)
		}
	}, nil
}
