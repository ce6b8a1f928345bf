package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ADITIII0201/kith/internal/directory"
	"github.com/ADITIII0201/kith/internal/engine"
	"github.com/ADITIII0201/kith/internal/snapshot"
	"github.com/ADITIII0201/kith/internal/suggest"
)

// RankOptions holds flags for the rank command.
type RankOptions struct {
	*RootOptions
	Config   string
	Database string
	User     string
	Limit    int
}

// RankResult is the structured payload of a rank run.
type RankResult struct {
	User        string                    `json:"user"`
	Suggestions []suggest.ScoredCandidate `json:"suggestions"`
}

// NewRankCommand creates the rank command.
func NewRankCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RankOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print ranked suggestions for a user",
		Long: `Rank the social graph for one user and print the suggestions.

The command loads the graph from the SQLite directory, replays the
user's replicated document from the snapshot store, and prints the
candidates that survive filtering, best first.

Example:
  kith rank --db graph.db --user u-ada
  kith rank --db graph.db --user u-ada --limit 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite social graph (defaults to the config value)")
	cmd.Flags().StringVar(&opts.User, "user", "", "user to rank for (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum suggestions (defaults to the config value)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runRank(opts *RankOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Directory.DB
	}
	limit := opts.Limit
	if limit == 0 {
		limit = cfg.Suggestions.Limit
	}

	dir, err := directory.OpenSQLite(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeDirectory, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open directory", err)
	}
	defer dir.Close()

	store, closeStore, err := openSnapshotStore(cfg)
	if err != nil {
		_ = formatter.Error(ErrCodeSnapshot, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open snapshot store", err)
	}
	defer closeStore()

	bridge := snapshot.NewBridge(store, snapshot.WithRetryDelay(cfg.Snapshot.RetryDelay.Std()))
	doc := bridge.Load(snapshot.Key(opts.User))
	formatter.VerboseLog("Document %s: %d dismissed, %d pending", opts.User, len(doc.Dismissed()), len(doc.Pending()))

	ranker := suggest.NewRanker(
		suggest.WithWeights(cfg.Weights),
		suggest.WithLimit(limit),
	)
	eng := engine.New(opts.User, doc, dir,
		engine.WithRanker(ranker),
		engine.WithBridge(bridge),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ranked, err := eng.Suggestions(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "ranking failed", err)
	}

	return outputRankSuccess(formatter, RankResult{User: opts.User, Suggestions: ranked})
}

// outputRankSuccess prints the ranked list.
func outputRankSuccess(formatter *OutputFormatter, result RankResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if len(result.Suggestions) == 0 {
		fmt.Fprintf(formatter.Writer, "No suggestions for %s\n", result.User)
		return nil
	}

	fmt.Fprintf(formatter.Writer, "Suggestions for %s:\n\n", result.User)
	for i, s := range result.Suggestions {
		fmt.Fprintf(formatter.Writer, "  %2d. %-24s %.3f  (%s)\n", i+1, s.User.Name, s.Score, s.User.ID)
	}
	return nil
}
