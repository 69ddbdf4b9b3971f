package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/aboutus/listsync/internal/config"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	initPath           string
	initForce          bool
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Write a listsync.toml",
	Long: `Write a config file. On a terminal a short form asks for the site, the
backend and the list name; otherwise (or with --non-interactive) the current
settings, including flags and LISTSYNC_* variables, are written as they are.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(initPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", initPath)
		}

		next := *cfg
		if !initNonInteractive && ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout) {
			if err := runInitForm(&next); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
				return err
			}
		}
		if err := next.Validate(); err != nil {
			return err
		}

		if err := config.Write(initPath, &next); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.RenderPass("✓"), initPath)
		fmt.Fprintf(cmd.OutOrStdout(), "   Run 'listsync plan' to see what ensure would change\n")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", config.FileName, "where to write the config")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "never prompt")
}

func runInitForm(c *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend").
				Options(
					huh.NewOption("SharePoint site (REST)", config.BackendREST),
					huh.NewOption("Local emulated site (SQLite)", config.BackendLocal),
				).
				Value(&c.Backend),
			huh.NewInput().
				Title("List name").
				Value(&c.ListName).
				Validate(func(s string) error {
					return ensure.ValidateName(s, c.ExcludeNames).Err()
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Site URL").
				Placeholder("https://contoso.sharepoint.com/sites/intranet").
				Value(&c.SiteURL).
				Validate(validateSiteURL),
			huh.NewInput().
				Title("Access token").
				Description("Leave empty to use LISTSYNC_ACCESS_TOKEN at run time").
				EchoMode(huh.EchoModePassword).
				Value(&c.AccessToken),
		).WithHideFunc(func() bool { return c.Backend != config.BackendREST }),
		huh.NewGroup(
			huh.NewInput().
				Title("Local site database").
				Value(&c.Local.Path),
		).WithHideFunc(func() bool { return c.Backend != config.BackendLocal }),
	)
	return form.Run()
}

func validateSiteURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("enter an absolute http(s) URL")
	}
	return nil
}
