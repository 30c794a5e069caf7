package cli

import (
	"github.com/spf13/cobra"
)

// MigrateOptions override the matching job file settings when their flag
// is given.
type MigrateOptions struct {
	PerPage  int
	DryRun   bool
	Progress bool
	Fields   []string
}

func NewMigrateCmd(global *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the migration described by a job file",
		Example: `  rowmigrate migrate -j books.yaml
  rowmigrate migrate -j books.yaml --per-page 500 --progress
  rowmigrate migrate -j books.yaml --dry-run --fields Title,Author`,
		RunE: func(c *cobra.Command, args []string) error {
			return runMigration(c, global, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.PerPage, "per-page", "p", 0, "Rows per page (overrides the job file)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Extract and transform without writing to the destination")
	cmd.Flags().BoolVar(&opts.Progress, "progress", false, "Log progress after every page")
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "Comma-separated source fields to migrate (overrides the job file)")

	return cmd
}

func NewInspectCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the fields, rows and pages of a job's source",
		RunE: func(c *cobra.Command, args []string) error {
			return runInspect(c, global)
		},
	}
}
