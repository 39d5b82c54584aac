package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/diaglog"
)

func newDiagCommand() *cobra.Command {
	diagCmd := &cobra.Command{
		Use:         "diag",
		Short:       "Diagnostic log utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	diagCmd.AddCommand(&cobra.Command{
		Use:   "export [DIR]",
		Short: "Bundle the diagnostic log into DIR (default: current directory)",
		Long: "Writes the NDJSON diagnostic log, prefixed with a metadata line, to DIR.\n" +
			"Enable the log by running with " + diaglog.EnvDebug + "=true.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := "."
			if len(args) == 1 {
				dest = args[0]
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dest, err)
			}
			path, n, err := diaglog.Export(diaglog.DefaultPath(), dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", n, path)
			return nil
		},
	})
	return diagCmd
}
