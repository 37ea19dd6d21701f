package cmd

import (
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/version"

	"github.com/spf13/cobra"
)

// Version information variables set via ldflags during build.
var (
	// Version is the application version (e.g., v1.0.0).
	Version string
	// Commit is the git commit hash.
	Commit string
	// BuildTime is the build timestamp.
	BuildTime string
)

// newVersionCmd creates and returns the version command.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			version.SetBuildVars(Version, Commit, BuildTime)
			return version.GetVersion().Write(cmd.OutOrStdout(), short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
