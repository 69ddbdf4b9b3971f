package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/journal"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	historySince string
	historyLimit int
	historyAll   bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:     "history [list-name]",
	GroupID: "sync",
	Short:   "List recorded runs, newest first",
	Long: `List recorded runs of the configured list (or every list with --all-lists).

--since takes a duration (36h), a date (2026-03-01) or plain words
("yesterday", "last monday").`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		out := cmd.OutOrStdout()

		since, err := parseSince(historySince, time.Now())
		if err != nil {
			return err
		}
		f := journal.Filter{Since: since, Limit: historyLimit}
		if !historyAll {
			f.List = listName(args)
		}

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close()

		runs, err := j.Runs(ctx, f)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}

		rows := [][]string{{"RUN", "STARTED", "LIST", "VERSION", "TRIGGER", "STATUS", "CHANGED", "FAILED"}}
		for _, r := range runs {
			rows = append(rows, []string{
				shortID(r.ID),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.List,
				r.TemplateVersion,
				r.Trigger,
				renderStatus(r.Status),
				fmt.Sprint(r.ChangedCount),
				fmt.Sprint(r.FailedCount),
			})
		}
		ui.Table(out, rows)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its entity outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		out := cmd.OutOrStdout()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close()

		run, items, err := j.Run(ctx, args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, struct {
				journal.Run
				Items []journal.Item `json:"items"`
			}{run, items})
		}

		fmt.Fprintf(out, "\n%s Run %s\n\n", ui.RenderAccent("📊"), run.ID)
		fmt.Fprintf(out, "List: %s\n", run.List)
		fmt.Fprintf(out, "Template: %s\n", run.TemplateVersion)
		fmt.Fprintf(out, "Trigger: %s\n", run.Trigger)
		fmt.Fprintf(out, "Status: %s\n", renderStatus(run.Status))
		fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Fprintf(out, "Duration: %v\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
		if run.Created {
			fmt.Fprintln(out, "The list was created by this run")
		}
		if run.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", run.Error)
		}
		fmt.Fprintln(out)

		rows := [][]string{{"ENTITY", "NAME", "ACTION", "DETAIL"}}
		for _, it := range items {
			detail := strings.Join(it.Changed, ", ")
			if it.Error != "" {
				detail = it.Error
			}
			rows = append(rows, []string{it.Entity, it.Name, ui.RenderAction(it.Action), detail})
		}
		ui.Table(out, rows)
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "print as JSON")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only runs started after this time")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyAll, "all-lists", false, "include every list")
	historyCmd.AddCommand(historyShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderStatus(status string) string {
	switch status {
	case journal.StatusComplete:
		return ui.RenderPass(status)
	case journal.StatusPartial:
		return ui.RenderWarn(status)
	default:
		return ui.RenderFail(status)
	}
}
