package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/autoupdate"
	"github.com/tiroq/whispersub/internal/diaglog"
)

func newVersionCommand() *cobra.Command {
	var check bool
	var channel string
	var apiURL string

	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print the version, optionally checking for a newer release",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "whispersub %s\n", diaglog.Version)
			if !check {
				return nil
			}

			ch, err := autoupdate.ParseChannel(channel)
			if err != nil {
				return err
			}
			checker := autoupdate.NewChecker(diaglog.Version)
			checker.Channel = ch
			if apiURL != "" {
				checker.APIURL = apiURL
			}
			available, release, err := checker.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if !available {
				fmt.Fprintln(out, "Up to date")
				return nil
			}
			fmt.Fprintf(out, "Update available: %s", release.TagName)
			if release.HTMLURL != "" {
				fmt.Fprintf(out, " (%s)", release.HTMLURL)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Query GitHub for a newer release")
	cmd.Flags().StringVar(&channel, "channel", string(autoupdate.ChannelStable), "Release channel (stable, prerelease, dev)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Override the GitHub repository API URL")
	_ = cmd.Flags().MarkHidden("api-url")
	return cmd
}
