package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/ui"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:     "plan [list-name]",
	GroupID: "sync",
	Short:   "Show what ensure would change, without writing",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		out := cmd.OutOrStdout()

		tmpl, err := loadTemplate()
		if err != nil {
			return err
		}
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.close()

		p, err := newOrchestrator(b, tmpl, nil).Plan(ctx, listName(args))
		if err != nil {
			return err
		}

		if planJSON {
			return writeJSON(out, planToJSON(p))
		}

		pending := p.Pending()
		if len(pending) == 0 {
			fmt.Fprintf(out, "%s %q matches template %s, nothing to do\n", ui.RenderPass("✓"), p.List, tmpl.Version)
			return nil
		}
		if !p.Exists {
			fmt.Fprintf(out, "%s %q does not exist and will be created\n", ui.RenderWarn("⚠"), p.List)
		}
		rows := [][]string{{"ENTITY", "NAME", "ACTION", "ATTRIBUTES"}}
		for _, e := range pending {
			rows = append(rows, []string{string(e.Entity), e.Name, ui.RenderAction(string(e.Action)), strings.Join(e.Changed, ", ")})
		}
		ui.Table(out, rows)
		fmt.Fprintf(out, "\n%d pending of %d entities\n", len(pending), len(p.Entries))
		return nil
	},
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
}

type planEntryJSON struct {
	Entity  string   `json:"entity"`
	Name    string   `json:"name"`
	Action  string   `json:"action"`
	Changed []string `json:"changed,omitempty"`
}

type planJSONDoc struct {
	List    string          `json:"list"`
	Exists  bool            `json:"exists"`
	Entries []planEntryJSON `json:"entries"`
}

func planToJSON(p *ensure.Plan) planJSONDoc {
	doc := planJSONDoc{List: p.List, Exists: p.Exists, Entries: make([]planEntryJSON, 0, len(p.Entries))}
	for _, e := range p.Entries {
		doc.Entries = append(doc.Entries, planEntryJSON{
			Entity:  string(e.Entity),
			Name:    e.Name,
			Action:  string(e.Action),
			Changed: e.Changed,
		})
	}
	return doc
}
