package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags. Empty values leave the
// environment configuration untouched.
type rootOptions struct {
	dbPath    string
	photoPath string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "firecheck",
		Short: "Record fire-safety inspection findings and export Word reports",
		Long: `firecheck records fire-safety inspection findings per project and renders
them into a .docx report with a building fire-prevention section and a
fire-protection equipment section.

Run "firecheck serve" for the mobile web UI, or use the subcommands to manage
findings from the shell.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.photoPath, "photos", "", "local photo directory (forces the local photo backend)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(opts),
		newAddCmd(opts),
		newListCmd(opts),
		newDeleteCmd(opts),
		newProjectsCmd(opts),
		newReportCmd(opts),
	)
	return cmd
}
