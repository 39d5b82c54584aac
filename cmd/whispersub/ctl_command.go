package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/ipc"
	"github.com/tiroq/whispersub/internal/pidfile"
)

func newCtlCommand(ctx *commandContext) *cobra.Command {
	names := make([]string, 0, len(ipc.Commands))
	for _, c := range ipc.Commands {
		names = append(names, string(c))
	}

	return &cobra.Command{
		Use:       "ctl COMMAND",
		Short:     "Send a command to the running monitor",
		Long:      "Commands: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			command, err := ipc.ParseCommand(args[0])
			if err != nil {
				return err
			}
			if !pidfile.Running(pidfile.Path(cfg.Control.Dir)) {
				return fmt.Errorf("whispersub is not running (no lock in %s)", cfg.Control.Dir)
			}
			if err := ipc.WriteCommand(cfg.Control.Dir, command); err != nil {
				return fmt.Errorf("write command: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", command)
			return nil
		},
	}
}
