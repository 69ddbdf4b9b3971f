package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/ui"
)

var validateOffline bool

var validateNameCmd = &cobra.Command{
	Use:     "validate-name <name>",
	GroupID: "setup",
	Short:   "Check whether a new list could take a name",
	Long: `Apply the list naming rules: required, at least 3 characters, no
special characters, and not already taken. Existing titles come from the
site unless --offline is given; exclude_names always applies.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		existing := append([]string(nil), cfg.ExcludeNames...)

		if !validateOffline {
			ctx, stop := signalContext()
			defer stop()

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
			titles, err := b.store.ListTitles(ctx)
			if err != nil {
				return fmt.Errorf("failed to read list titles: %w", err)
			}
			existing = append(existing, titles...)
		}

		check := ensure.ValidateName(args[0], existing)
		if !check.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderFail("✗"), check.Message)
			return check.Err()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q is available\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	validateNameCmd.Flags().BoolVar(&validateOffline, "offline", false, "skip the site lookup")
}
