package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/config"
	"github.com/tiroq/whispersub/internal/logging"
	"github.com/tiroq/whispersub/internal/pipeline"
)

func newDirectCommand(ctx *commandContext) *cobra.Command {
	var position float64
	var languageFlag string
	var echo bool
	var engineFlag string

	cmd := &cobra.Command{
		Use:   "direct PATH",
		Short: "Transcribe one file without a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			logger = logging.Component(logger, "core")
			d := diag(logger)
			defer d.Close()

			lang := cfg.Transcribe.Language
			if strings.TrimSpace(languageFlag) != "" {
				if lang, err = config.NormalizeLanguage(languageFlag); err != nil {
					return err
				}
			}

			reg, err := buildRegistry(cfg, d)
			if err != nil {
				return err
			}
			engine, err := selectEngine(reg, engineFlag)
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			checkEngines(runCtx, reg, logger, d)

			runner := newRunner(cfg, engine, logger, d)
			out := cmd.OutOrStdout()
			job := pipeline.Job{ID: uuid.NewString(), Source: args[0], Start: position, Language: lang}
			summary, err := runner.Run(runCtx, job, func(ev pipeline.Event) {
				switch e := ev.(type) {
				case pipeline.SinkCreated:
					logger.Info("writing subtitles", "path", e.Path)
				case pipeline.SegmentWritten:
					if echo {
						fmt.Fprintln(out, strings.TrimSpace(e.Text))
					}
				}
			})
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", args[0], err)
			}
			logger.Info("transcription complete",
				"path", summary.SubtitlePath,
				"windows", summary.Windows,
				"records", summary.Records,
				"language", summary.Language,
			)
			return nil
		},
	}

	cmd.Flags().Float64Var(&position, "position", 0, "Start position in seconds")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Language hint (overrides transcribe.language)")
	cmd.Flags().BoolVar(&echo, "echo", false, "Print each segment's text to stdout")
	cmd.Flags().StringVar(&engineFlag, "engine", "", "Engine to use instead of model.backend (local_whisper, remote_whisper_api)")
	return cmd
}
