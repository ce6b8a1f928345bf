package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ADITIII0201/kith/internal/directory"
	"github.com/ADITIII0201/kith/internal/social"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	File     string
}

// seedFile is the YAML document the seed command loads.
type seedFile struct {
	Users       []seedUser       `yaml:"users"`
	Connections []seedConnection `yaml:"connections"`
}

type seedUser struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	AvatarRef    string    `yaml:"avatar_ref"`
	Interests    []string  `yaml:"interests"`
	Groups       []string  `yaml:"groups"`
	LastActiveAt time.Time `yaml:"last_active_at"`
	IsOnline     bool      `yaml:"is_online"`
}

type seedConnection struct {
	Viewer   string   `yaml:"viewer"`
	Target   string   `yaml:"target"`
	Strength float64  `yaml:"strength"`
	Mutuals  []string `yaml:"mutuals"`
}

// SeedReport summarizes a seed run.
type SeedReport struct {
	Users       int      `json:"users"`
	Connections int      `json:"connections"`
	Dropped     []string `json:"dropped,omitempty"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML graph file into the directory",
		Long: `Load users and connection edges from a YAML file into the SQLite
directory, creating the database when it does not exist.

Invalid records are dropped and reported; the rest of the file still
loads.

Example:
  kith seed --db graph.db --file graph.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite social graph (required)")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to the YAML graph file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	raw, err := os.ReadFile(opts.File)
	if err != nil {
		_ = formatter.Error(ErrCodeSeedFile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read seed file", err)
	}
	var file seedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		_ = formatter.Error(ErrCodeSeedFile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to parse seed file", err)
	}

	dir, err := directory.OpenSQLite(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDirectory, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open directory", err)
	}
	defer dir.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report := seedDirectory(ctx, dir, file)
	return outputSeedSuccess(formatter, report)
}

// seedDirectory writes the file into dir, collecting a reason line for
// every record the directory rejects.
func seedDirectory(ctx context.Context, dir directory.Directory, file seedFile) SeedReport {
	var report SeedReport
	for _, u := range file.Users {
		err := dir.UpsertUser(ctx, social.User{
			ID:           u.ID,
			Name:         u.Name,
			AvatarRef:    u.AvatarRef,
			Interests:    u.Interests,
			Groups:       u.Groups,
			LastActiveAt: u.LastActiveAt,
			IsOnline:     u.IsOnline,
		})
		if err != nil {
			report.Dropped = append(report.Dropped, fmt.Sprintf("user %q: %v", u.ID, err))
			continue
		}
		report.Users++
	}
	for _, c := range file.Connections {
		err := dir.AddConnection(ctx, c.Viewer, social.ConnectionEdge{
			TargetUserID:      c.Target,
			Strength:          c.Strength,
			MutualFollowerIDs: c.Mutuals,
		})
		if err != nil {
			report.Dropped = append(report.Dropped, fmt.Sprintf("connection %q -> %q: %v", c.Viewer, c.Target, err))
			continue
		}
		report.Connections++
	}
	return report
}

// outputSeedSuccess prints the seed report.
func outputSeedSuccess(formatter *OutputFormatter, report SeedReport) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	fmt.Fprintf(formatter.Writer, "✓ Seeded %d user(s), %d connection(s)\n", report.Users, report.Connections)
	if len(report.Dropped) > 0 {
		fmt.Fprintf(formatter.Writer, "\nDropped %d record(s):\n", len(report.Dropped))
		for _, line := range report.Dropped {
			fmt.Fprintf(formatter.Writer, "  %s\n", line)
		}
	}
	return nil
}
