// Package mpv talks to a running mpv player over its JSON IPC socket.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiroq/whispersub/internal/diaglog"
)

var (
	// ErrPropertyUnavailable is returned when the player has no value for a
	// property, e.g. "path" while idle.
	ErrPropertyUnavailable = errors.New("mpv: property unavailable")
	// ErrNotConnected is returned once the IPC connection is gone.
	ErrNotConnected = errors.New("mpv: not connected")
)

// DefaultRequestTimeout bounds a request whose context has no deadline.
const DefaultRequestTimeout = 10 * time.Second

// keyMessage is the script-message name used for key bindings.
const keyMessage = "whispersub-key"

// Event is an asynchronous message from the player.
type Event struct {
	Name string
	// Args is set for client-message events.
	Args []string
	Raw  json.RawMessage
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type message struct {
	Event     string          `json:"event,omitempty"`
	Args      []string        `json:"args,omitempty"`
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type response struct {
	err  string
	data json.RawMessage
}

// Client is a connection to one player. Responses are matched to requests
// by request_id; events are delivered on a separate goroutine, so handlers
// may issue requests themselves.
type Client struct {
	conn    net.Conn
	logger  *slog.Logger
	diag    *diaglog.Logger
	timeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan response

	handlersMu sync.RWMutex
	handlers   map[string][]func(Event)
	keys       map[string]func()
	onShutdown func()

	queueMu sync.Mutex
	queue   []Event
	notify  chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once
}

// Dial connects to the player's IPC socket.
func Dial(ctx context.Context, socket string, logger *slog.Logger, diag *diaglog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect to player socket %s: %w", socket, err)
	}
	diag.Event(diaglog.ComponentPlayerIPC, diaglog.EventIPCConnect, "", map[string]any{"socket": socket})
	return NewClient(conn, logger, diag), nil
}

// NewClient wraps an established connection and starts the reader and
// event-dispatch goroutines.
func NewClient(conn net.Conn, logger *slog.Logger, diag *diaglog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		conn:     conn,
		logger:   logger,
		diag:     diag,
		timeout:  DefaultRequestTimeout,
		pending:  make(map[int64]chan response),
		handlers: make(map[string][]func(Event)),
		keys:     make(map[string]func()),
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	go c.dispatchLoop()
	return c
}

// Command sends a command and returns its data field.
func (c *Client) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, errors.New("mpv: empty command")
	}
	select {
	case <-c.closed:
		return nil, ErrNotConnected
	default:
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	ch := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("mpv: encode command: %w", err)
	}
	c.diag.Event(diaglog.ComponentPlayerIPC, diaglog.EventIPCSend, "", map[string]any{
		"request_id": id, "command": args,
	})

	c.writeMu.Lock()
	_, err = c.conn.Write(append(data, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	select {
	case resp := <-ch:
		switch resp.err {
		case "success":
			return resp.data, nil
		case "property unavailable":
			return nil, fmt.Errorf("%w: %v", ErrPropertyUnavailable, args[1:])
		default:
			return nil, fmt.Errorf("mpv: %v: %s", args[0], resp.err)
		}
	case <-c.closed:
		return nil, ErrNotConnected
	case <-ctx.Done():
		return nil, fmt.Errorf("mpv: %v: %w", args[0], ctx.Err())
	}
}

// GetProperty returns the raw value of a property.
func (c *Client) GetProperty(ctx context.Context, name string) (json.RawMessage, error) {
	return c.Command(ctx, "get_property", name)
}

// GetString reads a string property. A null value is returned as "".
func (c *Client) GetString(ctx context.Context, name string) (string, error) {
	data, err := c.GetProperty(ctx, name)
	if err != nil {
		return "", err
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("mpv: property %s: %w", name, err)
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// GetFloat reads a numeric property.
func (c *Client) GetFloat(ctx context.Context, name string) (float64, error) {
	data, err := c.GetProperty(ctx, name)
	if err != nil {
		return 0, err
	}
	var f *float64
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("mpv: property %s: %w", name, err)
	}
	if f == nil {
		return 0, fmt.Errorf("%w: %s", ErrPropertyUnavailable, name)
	}
	return *f, nil
}

// Path returns the path or URL of the loaded file.
func (c *Client) Path() (string, error) {
	return c.GetString(context.Background(), "path")
}

// Position returns the playback position in seconds.
func (c *Client) Position() (float64, error) {
	return c.GetFloat(context.Background(), "time-pos")
}

// ShowText displays an OSD message.
func (c *Client) ShowText(ctx context.Context, text string) error {
	_, err := c.Command(ctx, "show-text", text)
	return err
}

// LoadFile replaces the playlist with path.
func (c *Client) LoadFile(ctx context.Context, path string) error {
	_, err := c.Command(ctx, "loadfile", path)
	return err
}

// BindEvent registers fn for events named name.
func (c *Client) BindEvent(name string, fn func(Event)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[name] = append(c.handlers[name], fn)
}

// BindKey binds a key on the player so that pressing it calls fn.
func (c *Client) BindKey(ctx context.Context, binding string, fn func()) error {
	c.handlersMu.Lock()
	id := strconv.Itoa(len(c.keys))
	c.keys[id] = fn
	c.handlersMu.Unlock()

	cmd := fmt.Sprintf("script-message %s %s", keyMessage, id)
	if _, err := c.Command(ctx, "keybind", binding, cmd); err != nil {
		c.handlersMu.Lock()
		delete(c.keys, id)
		c.handlersMu.Unlock()
		return fmt.Errorf("bind key %s: %w", binding, err)
	}
	return nil
}

// OnShutdown registers fn to be called once when the player quits or the
// connection is lost.
func (c *Client) OnShutdown(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onShutdown = fn
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Close closes the connection.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Warn("ignoring malformed player message", "error", err)
			continue
		}

		if msg.Event != "" {
			c.diag.Event(diaglog.ComponentPlayerIPC, diaglog.EventIPCRecv, "", map[string]any{"event": msg.Event})
			raw := append(json.RawMessage(nil), scanner.Bytes()...)
			c.enqueue(Event{Name: msg.Event, Args: msg.Args, Raw: raw})
			continue
		}
		if msg.RequestID == nil {
			continue
		}
		c.diag.Event(diaglog.ComponentPlayerIPC, diaglog.EventIPCRecv, "", map[string]any{
			"request_id": *msg.RequestID, "error": msg.Error,
		})
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- response{err: msg.Error, data: msg.Data}
		}
	}
	c.shutdown(scanner.Err())
}

func (c *Client) enqueue(ev Event) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	c.queueMu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.notify:
		case <-c.closed:
			return
		}
		for {
			c.queueMu.Lock()
			if len(c.queue) == 0 {
				c.queueMu.Unlock()
				break
			}
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.queueMu.Unlock()
			c.dispatch(ev)
		}
	}
}

func (c *Client) dispatch(ev Event) {
	if ev.Name == "shutdown" {
		c.quit()
		return
	}

	c.handlersMu.RLock()
	handlers := append([]func(Event)(nil), c.handlers[ev.Name]...)
	var key func()
	if ev.Name == "client-message" && len(ev.Args) == 2 && ev.Args[0] == keyMessage {
		key = c.keys[ev.Args[1]]
	}
	c.handlersMu.RUnlock()

	if key != nil {
		key()
	}
	for _, fn := range handlers {
		fn(ev)
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err != nil {
			c.logger.Warn("player connection lost", "error", err)
		}
		c.diag.Event(diaglog.ComponentPlayerIPC, diaglog.EventIPCDisconnect, "", nil)
		_ = c.conn.Close()
		close(c.closed)
	})
	c.quit()
}

func (c *Client) quit() {
	c.quitOnce.Do(func() {
		c.handlersMu.RLock()
		fn := c.onShutdown
		c.handlersMu.RUnlock()
		if fn != nil {
			go fn()
		}
	})
}
