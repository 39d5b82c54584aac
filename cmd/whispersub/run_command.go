package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiroq/whispersub/internal/eventfeed"
	"github.com/tiroq/whispersub/internal/ipc"
	"github.com/tiroq/whispersub/internal/logging"
	"github.com/tiroq/whispersub/internal/mpv"
	"github.com/tiroq/whispersub/internal/pidfile"
	"github.com/tiroq/whispersub/internal/router"
	"github.com/tiroq/whispersub/internal/supervisor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var engineFlag string
	cmd := &cobra.Command{
		Use:   "run [PATH]",
		Short: "Monitor mpv and subtitle whatever it plays",
		Long: "Launches mpv (or attaches to mpv.ipc_socket when mpv.start_mpv is false) and\n" +
			"transcribes every file it starts, appending subtitles as windows finish.",
		Args: cobra.MaximumNArgs(1),
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

			lock, err := pidfile.New(pidfile.Path(cfg.Control.Dir))
			if err != nil {
				return err
			}
			defer lock.Remove()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			reg, err := buildRegistry(cfg, d)
			if err != nil {
				return err
			}
			engine, err := selectEngine(reg, engineFlag)
			if err != nil {
				return err
			}
			checkEngines(runCtx, reg, logger, d)

			socket := cfg.MPV.IPCSocket
			if cfg.MPV.StartMPV {
				proc, err := mpv.Launch(runCtx, mpv.LaunchOptions{
					Executable: cfg.MPV.Executable,
					Socket:     socket,
					Args:       cfg.MPV.StartArgs,
					Logger:     logger,
				})
				if err != nil {
					return err
				}
				defer proc.Kill()
				socket = proc.Socket
			} else if socket == "" {
				return fmt.Errorf("mpv.ipc_socket is required when mpv.start_mpv is false")
			}

			playerLogger := logging.Component(logger, "player")
			client, err := mpv.Dial(runCtx, socket, playerLogger, d)
			if err != nil {
				return err
			}
			defer client.Close()
			client.OnShutdown(func() {
				logger.Info("player exited")
				cancel()
			})

			var feed router.Publisher
			if cfg.Events.Listen != "" {
				hub := eventfeed.NewHub(logging.Component(logger, "eventfeed"))
				feed = hub
				go func() {
					if err := eventfeed.Serve(runCtx, cfg.Events.Listen, hub, logger); err != nil {
						logger.Error("event feed stopped", "error", err)
					}
				}()
			}

			r := router.New(router.Options{
				Player:        client,
				ToggleBinding: cfg.MPV.ToggleBinding,
				StatusDir:     cfg.Control.Dir,
				Engine:        engine.Name(),
				Feed:          feed,
				Quit:          cancel,
				Logger:        logging.Component(logger, "router"),
			})
			sup := supervisor.New(supervisor.Options{
				Player:   client,
				Runner:   newRunner(cfg, engine, logger, d),
				Observer: r,
				Language: cfg.Transcribe.Language,
				Logger:   logging.Component(logger, "supervisor"),
				Diag:     d,
			})
			defer sup.Close()

			if err := r.Attach(runCtx, sup); err != nil {
				return err
			}
			go func() {
				if err := ipc.Watch(runCtx, cfg.Control.Dir, logging.Component(logger, "control"), r.HandleCommand); err != nil {
					logger.Error("command watcher stopped", "error", err)
				}
			}()

			logger.Info("whispersub started",
				"config", ctx.configPath,
				"engine", engine.Name(),
				"mode", string(cfg.Transcribe.Mode),
				"socket", socket,
			)

			if len(args) == 1 {
				if err := client.LoadFile(runCtx, args[0]); err != nil {
					return fmt.Errorf("load %s: %w", args[0], err)
				}
			} else {
				// Pick up a file that was already playing when we attached.
				sup.PlaybackStarted()
			}

			<-runCtx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&engineFlag, "engine", "", "Engine to use instead of model.backend (local_whisper, remote_whisper_api)")
	return cmd
}
