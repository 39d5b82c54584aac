package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// SocketWait is how long Launch waits for the player to open its socket.
const SocketWait = 10 * time.Second

// LaunchOptions configures a player process.
type LaunchOptions struct {
	Executable string
	// Socket is the IPC socket path; empty picks one in the temp dir.
	Socket string
	// Args are extra --key=value options. Booleans render as yes/no.
	Args   map[string]any
	Logger *slog.Logger
}

// Process is a player started by Launch.
type Process struct {
	Socket string
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

// args returns the player command line, without the executable.
func (opts LaunchOptions) args() []string {
	args := []string{"--idle=yes", "--force-window=yes", "--input-ipc-server=" + opts.Socket}
	keys := make([]string, 0, len(opts.Args))
	for k := range opts.Args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("--%s=%s", strings.TrimPrefix(k, "--"), optionValue(opts.Args[k])))
	}
	return args
}

// optionValue renders a value the way mpv's option parser expects.
func optionValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Launch starts the player and waits until its IPC socket accepts
// connections.
func Launch(ctx context.Context, opts LaunchOptions) (*Process, error) {
	if opts.Executable == "" {
		opts.Executable = "mpv"
	}
	if opts.Socket == "" {
		opts.Socket = filepath.Join(os.TempDir(), "whispersub-"+uuid.NewString()[:8]+".sock")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cmd := exec.Command(opts.Executable, opts.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player %s: %w", opts.Executable, err)
	}
	p := &Process{Socket: opts.Socket, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	logger.Info("player started", "pid", cmd.Process.Pid, "socket", opts.Socket)

	if err := p.waitSocket(ctx, SocketWait); err != nil {
		p.Kill()
		return nil, err
	}
	return p, nil
}

func (p *Process) waitSocket(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		conn, err := net.Dial("unix", p.Socket)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return fmt.Errorf("player exited before opening %s: %v", p.Socket, p.err)
		case <-deadline.C:
			return fmt.Errorf("player socket %s not ready after %v", p.Socket, timeout)
		case <-tick.C:
		}
	}
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Kill stops the player and removes its socket.
func (p *Process) Kill() {
	select {
	case <-p.done:
	default:
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			_ = p.cmd.Process.Kill()
		}
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
			<-p.done
		}
	}
	_ = os.Remove(p.Socket)
}
