package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Failure modes for MockMPV.
const (
	ModeNormal     = "normal"
	ModeTimeout    = "timeout"    // requests are read but never answered
	ModeDisconnect = "disconnect" // the connection is closed on the next request
)

// MockMPV simulates the player's JSON IPC server on a unix socket. It
// answers get_property from a property table and records every command.
type MockMPV struct {
	listener net.Listener
	dir      string

	mu       sync.Mutex
	mode     string
	props    map[string]any
	commands [][]any
	conns    []net.Conn
}

// NewMockMPV creates a mock player listening on a fresh socket.
func NewMockMPV() (*MockMPV, error) {
	// Unix socket paths are length limited, so stay out of long test dirs.
	dir, err := os.MkdirTemp("", "mpv")
	if err != nil {
		return nil, fmt.Errorf("failed to create socket dir: %w", err)
	}
	listener, err := net.Listen("unix", filepath.Join(dir, "ipc.sock"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	m := &MockMPV{
		listener: listener,
		dir:      dir,
		mode:     ModeNormal,
		props:    make(map[string]any),
	}
	go m.accept()
	return m, nil
}

// Socket returns the socket path.
func (m *MockMPV) Socket() string {
	return m.listener.Addr().String()
}

// Stop closes the listener and every open connection.
func (m *MockMPV) Stop() {
	_ = m.listener.Close()
	m.DropConnections()
	_ = os.RemoveAll(m.dir)
}

// DropConnections closes client connections, leaving the listener open.
func (m *MockMPV) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
	m.conns = nil
}

// SetFailureMode configures how the server responds to requests
func (m *MockMPV) SetFailureMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// SetProperty sets the value returned by get_property. A nil value makes
// the property unavailable.
func (m *MockMPV) SetProperty(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.props, name)
		return
	}
	m.props[name] = value
}

// Commands returns every command received so far.
func (m *MockMPV) Commands() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commands)
}

// CommandsNamed returns received commands whose first element is name.
func (m *MockMPV) CommandsNamed(name string) [][]any {
	var out [][]any
	for _, c := range m.Commands() {
		if len(c) > 0 && c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

// WaitForCommand polls until a command named name has been received at
// least n times.
func (m *MockMPV) WaitForCommand(name string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.CommandsNamed(name)) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Connected reports the number of open client connections.
func (m *MockMPV) Connected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Emit sends an event object to every client, e.g.
// map[string]any{"event": "start-file"}.
func (m *MockMPV) Emit(event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if _, err := c.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// EmitClientMessage sends a client-message event with the given args, as
// the player does for script-message commands.
func (m *MockMPV) EmitClientMessage(args ...string) error {
	return m.Emit(map[string]any{"event": "client-message", "args": args})
}

func (m *MockMPV) accept() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		go m.serve(conn)
	}
}

type mockRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

func (m *MockMPV) serve(conn net.Conn) {
	defer func() {
		m.mu.Lock()
		m.conns = slices.DeleteFunc(m.conns, func(c net.Conn) bool { return c == conn })
		m.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req mockRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		m.mu.Lock()
		m.commands = append(m.commands, req.Command)
		mode := m.mode
		resp := m.respond(req)
		m.mu.Unlock()

		switch mode {
		case ModeTimeout:
			continue
		case ModeDisconnect:
			return
		}

		data, _ := json.Marshal(resp)
		m.mu.Lock()
		_, err := conn.Write(append(data, '\n'))
		m.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// respond builds the reply for req. Caller holds m.mu.
func (m *MockMPV) respond(req mockRequest) map[string]any {
	resp := map[string]any{"request_id": req.RequestID, "error": "success"}
	if len(req.Command) == 0 {
		resp["error"] = "invalid parameter"
		return resp
	}
	switch req.Command[0] {
	case "get_property":
		var name string
		if len(req.Command) > 1 {
			name, _ = req.Command[1].(string)
		}
		value, ok := m.props[name]
		if !ok {
			resp["error"] = "property unavailable"
			return resp
		}
		resp["data"] = value
	case "set_property":
		if len(req.Command) != 3 {
			resp["error"] = "invalid parameter"
			return resp
		}
		name, _ := req.Command[1].(string)
		m.props[name] = req.Command[2]
	}
	return resp
}
