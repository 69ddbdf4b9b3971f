package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/journal"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	ensureNoJournal bool
	ensureJSON      bool
	ensureAll       bool
)

var ensureCmd = &cobra.Command{
	Use:     "ensure [list-name]",
	GroupID: "sync",
	Short:   "Create the list if needed and converge it to the template",
	Long: `Converge one list towards the template:
  1. Validate the list name
  2. Find the list, or create it
  3. Update list settings
  4. Create or update every template field
  5. Create or update every template view and its fields

Per-entity failures are reported and do not stop the run. The run is
recorded in the journal unless --no-journal is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnsure,
}

func init() {
	ensureCmd.Flags().BoolVar(&ensureNoJournal, "no-journal", false, "do not record the run")
	ensureCmd.Flags().BoolVar(&ensureJSON, "json", false, "print the report as JSON")
	ensureCmd.Flags().BoolVar(&ensureAll, "all", false, "also list unchanged entities")
}

func runEnsure(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	out := cmd.OutOrStdout()
	name := listName(args)

	tmpl, err := loadTemplate()
	if err != nil {
		return err
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	var j *journal.Journal
	if !ensureNoJournal {
		j, err = openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close()

		last, down, err := j.CheckDowngrade(ctx, name, tmpl.Version)
		if err != nil {
			logger.Warn("downgrade check failed", zap.Error(err))
		} else if down {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s template %s is older than %s, the version last applied to %q\n",
				ui.RenderWarn("⚠"), tmpl.Version, last, name)
		}
	}

	if !ensureJSON {
		fmt.Fprintf(out, "%s Ensuring %q with template %s...\n", ui.RenderAccent("🔄"), name, tmpl.Version)
	}

	o := newOrchestrator(b, tmpl, nil)
	rep, runErr := o.Ensure(ctx, name)

	if j != nil {
		// Record even when interrupted so the journal shows the partial run.
		if _, err := j.Record(context.WithoutCancel(ctx), journal.TriggerManual, rep, runErr); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	if ensureJSON {
		if err := writeJSON(out, toReportJSON(rep)); err != nil {
			return err
		}
	} else {
		printReport(out, rep, ensureAll)
	}
	if !rep.Complete() {
		return fmt.Errorf("%d of %d entities not converged", len(rep.Failed()), len(rep.Results))
	}
	return nil
}
