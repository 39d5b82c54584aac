package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/config"
	"github.com/tiroq/whispersub/internal/diaglog"
	"github.com/tiroq/whispersub/internal/validation"
)

var errChecksFailed = errors.New("one or more checks failed")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipEngines bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify external tools and engine health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := validation.CheckAll(cmd.Context(), toolsFor(cfg))

			if !skipEngines {
				reg, err := buildRegistry(cfg, diaglog.NewNoOp())
				if err != nil {
					return err
				}
				results = append(results, engineResults(cmd.Context(), reg)...)
			}

			printChecks(cmd.OutOrStdout(), results)
			if validation.Failed(results) {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipEngines, "skip-engines", false, "Do not contact transcription engines")
	return cmd
}

func toolsFor(cfg *config.Config) validation.Tools {
	tools := validation.Tools{
		FFmpeg:      cfg.Audio.FFmpegBinary,
		FFprobe:     cfg.Audio.FFprobeBinary,
		MPV:         cfg.MPV.Executable,
		MPVRequired: cfg.MPV.StartMPV,
	}
	if !cfg.MPV.StartMPV {
		tools.Socket = cfg.MPV.IPCSocket
	}
	return tools
}

func engineResults(ctx context.Context, reg *asr.Registry) []*validation.ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	var results []*validation.ValidationResult
	for _, st := range reg.HealthCheckAll(ctx) {
		results = append(results, &validation.ValidationResult{
			Name:    st.Engine,
			OK:      st.OK,
			Message: st.Message,
		})
	}
	return results
}

func printChecks(w io.Writer, results []*validation.ValidationResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "FAIL"
		} else if len(r.Warnings) > 0 {
			status = "warn"
		}
		rows = append(rows, []string{r.Name, status, r.Message})
	}
	fmt.Fprintln(w, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

	for _, r := range results {
		notes := append(append(append([]string{}, r.Issues...), r.Warnings...), r.Fixes...)
		if len(notes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n  %s\n", r.Name, strings.Join(notes, "\n  "))
	}
}
