package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/tiroq/whispersub/internal/ipc"
	"github.com/tiroq/whispersub/internal/pidfile"
	"github.com/tiroq/whispersub/internal/subtitle"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the monitor state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			running := pidfile.Running(pidfile.Path(cfg.Control.Dir))
			status, err := ipc.ReadStatus(cfg.Control.Dir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(out, "No status recorded in %s\n", cfg.Control.Dir)
					return nil
				}
				return fmt.Errorf("read status: %w", err)
			}
			fmt.Fprintln(out, renderStatus(status, running, useColor(out), time.Now()))
			return nil
		},
	}
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func renderStatus(st *ipc.StatusSnapshot, running, color bool, now time.Time) string {
	state := st.State
	if !running {
		state = "stopped"
	}
	if color {
		switch state {
		case "running":
			state = text.FgGreen.Sprint(state)
		case "stopped":
			state = text.FgRed.Sprint(state)
		}
	}

	rows := [][]string{
		{"Monitor", state},
		{"Auto-start", yesNo(st.Enabled)},
		{"Engine", dash(st.Engine)},
	}
	if running {
		rows = append(rows, []string{"PID", strconv.Itoa(st.PID)})
	}
	if st.Path != "" {
		rows = append(rows,
			[]string{"File", st.Path},
			[]string{"Started at", subtitle.FormatTimestamp(st.Start)},
		)
	}
	rows = append(rows,
		[]string{"Subtitles", dash(st.SubtitlePath)},
		[]string{"Windows", strconv.Itoa(st.Windows)},
		[]string{"Records", strconv.Itoa(st.Records)},
		[]string{"Language", languageLabel(st.Language)},
		[]string{"Last event", dash(st.LastEvent)},
	)
	if st.LastError != "" {
		rows = append(rows, []string{"Last error", st.LastError})
	}
	rows = append(rows, []string{"Updated", formatAge(now.Sub(st.Timestamp))})
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

// languageLabel renders "ja (Japanese)".
func languageLabel(code string) string {
	if code == "" {
		return "auto"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", code, name)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
