package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show the effective configuration",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		source := cfg.Source
		if source == "" {
			source = "(defaults and environment only)"
		}
		template := cfg.Template
		if template == "" {
			template = "(built-in About-Us)"
		}

		fmt.Fprintf(out, "\n%s listsync configuration\n\n", ui.RenderAccent("⚙"))
		ui.Table(out, [][]string{
			{"KEY", "VALUE"},
			{"source", source},
			{"backend", cfg.Backend},
			{"site_url", cfg.SiteURL},
			{"access_token", maskSecret(cfg.AccessToken)},
			{"list_name", cfg.ListName},
			{"template", template},
			{"exclude_names", strings.Join(cfg.ExcludeNames, ", ")},
			{"local.path", cfg.Local.Path},
			{"journal.path", cfg.Journal.Path},
			{"log.level", cfg.Log.Level},
			{"log.file", cfg.Log.File},
			{"settle.reset_pause", cfg.Settle.ResetPause.String()},
			{"settle.add_pause", cfg.Settle.AddPause.String()},
			{"settle.attempts", fmt.Sprint(cfg.Settle.Attempts)},
			{"dashboard.port", fmt.Sprint(cfg.Dashboard.Port)},
			{"http.timeout", cfg.HTTP.Timeout.String()},
		})
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(out, "\n%s %v\n", ui.RenderWarn("⚠"), err)
		}
	},
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}
