package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/schema"
	"github.com/aboutus/listsync/internal/ui"
)

var templateFormat string

var templateCmd = &cobra.Command{
	Use:     "template",
	GroupID: "setup",
	Short:   "Show or check list templates",
}

var templateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured template (the built-in one by default)",
	Long: `Print the configured template. Redirect the output to a file to start a
custom template from the built-in About-Us one:

  listsync template show --format yaml > aboutus.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := loadTemplate()
		if err != nil {
			return err
		}
		data, err := schema.Encode(tmpl, schema.Format(templateFormat))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	},
}

var templateCheckCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Validate template files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			tmpl, err := schema.Load(path)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", ui.RenderFail("✗"), err)
				failed++
				continue
			}
			fmt.Fprintf(out, "%s %s: version %s, %d fields, %d views\n",
				ui.RenderPass("✓"), path, tmpl.Version, len(tmpl.Fields), len(tmpl.Views))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d templates invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	templateShowCmd.Flags().StringVar(&templateFormat, "format", string(schema.FormatJSON), "json or yaml")
	templateCmd.AddCommand(templateShowCmd, templateCheckCmd)
}
