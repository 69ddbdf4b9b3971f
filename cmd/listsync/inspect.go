package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/inspect"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	inspectAll  bool
	inspectJSON bool
)

var inspectCmd = &cobra.Command{
	Use:     "inspect [list-name]",
	GroupID: "sync",
	Short:   "Print the list's current fields and views",
	Long: `Read the list as it is now. Only fields a template can manage are shown
unless --all is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		out := cmd.OutOrStdout()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.close()
		if b.tokens != nil {
			if _, err := b.tokens.Get(ctx); err != nil {
				return err
			}
		}

		in := inspect.New(b.store)
		info, err := in.ListByTitle(ctx, listName(args))
		if err != nil {
			return err
		}
		fields, err := in.ListFields(ctx, info.ID)
		if err != nil {
			return err
		}
		views, err := in.ListViews(ctx, info.ID)
		if err != nil {
			return err
		}
		if !inspectAll {
			fields = inspect.Managed(fields)
		}

		if inspectJSON {
			return writeJSON(out, struct {
				List   remote.ListInfo      `json:"list"`
				Fields []remote.RemoteField `json:"fields"`
				Views  []remote.RemoteView  `json:"views"`
			}{info, fields, views})
		}

		fmt.Fprintf(out, "\n%s %s\n\n", ui.RenderAccent("📋"), ui.RenderHeader(info.Title))
		fmt.Fprintf(out, "ID: %s\n", info.ID)
		if info.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", info.Description)
		}
		fmt.Fprintf(out, "Template: %d\n\n", info.BaseTemplate)

		rows := [][]string{{"FIELD", "TITLE", "TYPE"}}
		for _, f := range fields {
			rows = append(rows, []string{f.InternalName, f.Title, f.TypeName})
		}
		ui.Table(out, rows)
		fmt.Fprintln(out)

		rows = [][]string{{"VIEW", "FIELDS"}}
		for _, v := range views {
			title := v.Title
			if v.Personal {
				title += ui.RenderMuted(" (personal)")
			}
			rows = append(rows, []string{title, strings.Join(v.Fields, ", ")})
		}
		ui.Table(out, rows)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectAll, "all", false, "include system and read-only fields")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print as JSON")
}
