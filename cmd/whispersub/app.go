package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiroq/whispersub/internal/asr"
	"github.com/tiroq/whispersub/internal/asr/localwhisper"
	"github.com/tiroq/whispersub/internal/asr/remotewhisper"
	"github.com/tiroq/whispersub/internal/audio"
	"github.com/tiroq/whispersub/internal/config"
	"github.com/tiroq/whispersub/internal/diaglog"
	"github.com/tiroq/whispersub/internal/logging"
	"github.com/tiroq/whispersub/internal/pipeline"
	"github.com/tiroq/whispersub/internal/transcriber"
)

const healthTimeout = 10 * time.Second

// buildRegistry registers the configured backend as primary, plus the
// other backend when it has enough configuration to be usable.
func buildRegistry(cfg *config.Config, d *diaglog.Logger) (*asr.Registry, error) {
	local := localwhisper.New(localwhisper.Config{
		BinaryPath: cfg.Model.Local.BinaryPath,
		ModelDir:   cfg.Model.Local.ModelDir,
		Model:      cfg.Model.Model,
		Threads:    cfg.Model.Local.Threads,
		Device:     cfg.Model.Local.Device,
	})
	remote := remotewhisper.NewClient(remotewhisper.Config{
		BaseURL:        cfg.Model.Remote.BaseURL,
		Token:          cfg.Model.Remote.Token,
		TimeoutSeconds: cfg.Model.Remote.TimeoutSeconds,
		Retries:        cfg.Model.Remote.Retries,
		Model:          cfg.Model.Model,
	}, d)

	reg := asr.NewRegistry()
	switch cfg.Model.Backend {
	case config.BackendLocalWhisper:
		reg.Register(local)
		if cfg.Model.Remote.BaseURL != "" {
			reg.Register(remote)
		}
	case config.BackendRemoteWhisper:
		reg.Register(remote)
		if cfg.Model.Local.BinaryPath != "" {
			reg.Register(local)
		}
	default:
		return nil, fmt.Errorf("unknown model.backend %q", cfg.Model.Backend)
	}
	return reg, nil
}

// selectEngine makes the named engine primary when name is set. The
// engine must have been registered by buildRegistry.
func selectEngine(reg *asr.Registry, name string) (asr.Engine, error) {
	if name = strings.TrimSpace(name); name != "" {
		if err := reg.SetPrimary(name); err != nil {
			return nil, fmt.Errorf("--engine: %w", err)
		}
	}
	return reg.Primary(), nil
}

// checkEngines logs the health of every engine. Unhealthy engines only
// warn; the first window will surface a real failure.
func checkEngines(ctx context.Context, reg *asr.Registry, logger *slog.Logger, d *diaglog.Logger) []asr.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	statuses := reg.HealthCheckAll(ctx)
	for _, st := range statuses {
		d.Event(diaglog.ComponentEngine, diaglog.EventEngineHealth, "", map[string]any{
			"engine": st.Engine, "ok": st.OK, "message": st.Message, "latency_ms": st.Latency.Milliseconds(),
		})
		if st.OK {
			logger.Info("engine ready", "engine", st.Engine, "latency", st.Latency.Round(time.Millisecond))
		} else {
			logger.Warn("engine unhealthy", "engine", st.Engine, "message", st.Message)
		}
	}
	return statuses
}

// newRunner assembles the orchestration loop shared by run and direct.
func newRunner(cfg *config.Config, engine asr.Engine, logger *slog.Logger, d *diaglog.Logger) *pipeline.Runner {
	tr := transcriber.New(engine, transcriber.Options{
		Mode:                cfg.Transcribe.Mode,
		ConfidenceThreshold: cfg.Transcribe.ConfidenceThreshold,
		Model:               cfg.Model.Model,
		BeamSize:            cfg.Model.BeamSize,
		Extra:               cfg.Model.Args,
	}, logging.Component(logger, "transcriber"))

	return &pipeline.Runner{
		Decoder: &audio.FFmpegDecoder{
			FFmpeg:  cfg.Audio.FFmpegBinary,
			FFprobe: cfg.Audio.FFprobeBinary,
			Logger:  logging.Component(logger, "audio"),
		},
		Transcriber:   tr,
		SubtitlePath:  cfg.SubtitlePath,
		ChunkDuration: cfg.Transcribe.ChunkDuration,
		Wrap:          cfg.Subtitle.Wrap,
		Logger:        logging.Component(logger, "pipeline"),
		Diag:          d,
	}
}
