package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/rowmigrate/internal/etl"
	"github.com/BartekS5/rowmigrate/pkg/logger"
)

var errJobRequired = errors.New("a job file is required (--job)")

func runMigration(cmd *cobra.Command, global *GlobalOptions, opts *MigrateOptions) error {
	job, err := global.loadJob()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("per-page") {
		job.PerPage = opts.PerPage
	}
	if flags.Changed("dry-run") {
		job.DryRun = opts.DryRun
	}
	if flags.Changed("progress") {
		job.Progress = opts.Progress
	}
	if flags.Changed("fields") {
		job.Fields = opts.Fields
	}

	ctx := commandContext(cmd)

	plan, err := etl.Build(ctx, job, global.env)
	if err != nil {
		return err
	}
	defer plan.Close()

	name := job.Name
	if name == "" {
		name = global.JobFile
	}
	logger.Infof("Starting %s -> %s migration for job %s...", job.Source.Type, job.Destination.Type, name)

	res, err := plan.Migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d rows in %d pages (run %s, %s).\n",
		res.Rows, res.Pages, res.RunID, res.Duration.Round(time.Millisecond))
	return nil
}

func runInspect(cmd *cobra.Command, global *GlobalOptions) error {
	job, err := global.loadJob()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)

	plan, err := etl.OpenSource(ctx, job.Source, global.env)
	if err != nil {
		return err
	}
	defer plan.Close()

	src := plan.Source
	if job.PerPage > 0 {
		if err := src.SetPerPage(job.PerPage); err != nil {
			return err
		}
	}
	rows, err := src.CountDataRows(ctx)
	if err != nil {
		return err
	}
	pages, err := src.CountPages(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Source: %s\n", job.Source.Type)
	fmt.Fprintf(out, "Fields: %s\n", strings.Join(src.GetFields(), ", "))
	fmt.Fprintf(out, "Rows:   %d\n", rows)
	fmt.Fprintf(out, "Pages:  %d\n", pages)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
