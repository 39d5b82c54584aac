package mpv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tiroq/whispersub/testutil"
)

func newMock(t *testing.T) *testutil.MockMPV {
	t.Helper()
	mock, err := testutil.NewMockMPV()
	if err != nil {
		t.Fatalf("mock player: %v", err)
	}
	t.Cleanup(mock.Stop)
	return mock
}

func dial(t *testing.T, mock *testutil.MockMPV) *Client {
	t.Helper()
	c, err := Dial(context.Background(), mock.Socket(), nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	testutil.WaitForCondition(t, func() bool { return mock.Connected() == 1 }, time.Second, "mock accepted connection")
	return c
}

func TestGetProperties(t *testing.T) {
	mock := newMock(t)
	mock.SetProperty("path", "/media/show.mkv")
	mock.SetProperty("time-pos", 12.5)
	c := dial(t, mock)

	path, err := c.Path()
	testutil.AssertNoError(t, err, "Path")
	testutil.AssertEqual(t, "/media/show.mkv", path, "path")

	pos, err := c.Position()
	testutil.AssertNoError(t, err, "Position")
	testutil.AssertEqual(t, 12.5, pos, "position")
}

func TestPropertyUnavailable(t *testing.T) {
	c := dial(t, newMock(t))

	_, err := c.Path()
	if !errors.Is(err, ErrPropertyUnavailable) {
		t.Fatalf("Path error = %v, want ErrPropertyUnavailable", err)
	}
	_, err = c.Position()
	if !errors.Is(err, ErrPropertyUnavailable) {
		t.Fatalf("Position error = %v, want ErrPropertyUnavailable", err)
	}
}

func TestCommandsAreSent(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)
	ctx := context.Background()

	testutil.AssertNoError(t, c.ShowText(ctx, "hello"), "ShowText")
	_, err := c.Command(ctx, "sub-add", "/tmp/a.srt")
	testutil.AssertNoError(t, err, "sub-add")
	testutil.AssertNoError(t, c.LoadFile(ctx, "/media/a.mkv"), "LoadFile")

	cmds := mock.Commands()
	if len(cmds) != 3 {
		t.Fatalf("commands = %v", cmds)
	}
	if cmds[0][0] != "show-text" || cmds[0][1] != "hello" {
		t.Errorf("first command = %v", cmds[0])
	}
	if cmds[1][0] != "sub-add" || cmds[2][0] != "loadfile" {
		t.Errorf("commands = %v", cmds)
	}
}

func TestBindEventDispatch(t *testing.T) {
	mock := newMock(t)
	mock.SetProperty("path", "/media/a.mkv")
	c := dial(t, mock)

	got := make(chan string, 1)
	// A handler may issue requests of its own.
	c.BindEvent("start-file", func(Event) {
		path, err := c.Path()
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- path
	})

	if err := mock.Emit(map[string]any{"event": "start-file", "playlist_entry_id": 1}); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "/media/a.mkv", testutil.Receive(t, got, time.Second, "handler"), "path from handler")
}

func TestBindKey(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)

	var presses atomic.Int32
	if err := c.BindKey(context.Background(), "ctrl+.", func() { presses.Add(1) }); err != nil {
		t.Fatalf("BindKey: %v", err)
	}
	binds := mock.CommandsNamed("keybind")
	if len(binds) != 1 || binds[0][1] != "ctrl+." || binds[0][2] != "script-message whispersub-key 0" {
		t.Fatalf("keybind commands = %v", binds)
	}

	_ = mock.EmitClientMessage("whispersub-key", "0")
	_ = mock.EmitClientMessage("other-script", "0")
	testutil.WaitForCondition(t, func() bool { return presses.Load() == 1 }, time.Second, "key handler called")
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, int32(1), presses.Load(), "presses")
}

func TestShutdownEvent(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)

	quit := make(chan struct{})
	c.OnShutdown(func() { close(quit) })
	_ = mock.Emit(map[string]any{"event": "shutdown"})
	testutil.Receive(t, quit, time.Second, "quit callback")
}

func TestConnectionLoss(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)

	quit := make(chan struct{})
	c.OnShutdown(func() { close(quit) })
	mock.DropConnections()

	testutil.Receive(t, quit, time.Second, "quit callback")
	testutil.Receive(t, c.Done(), time.Second, "client done")
	if _, err := c.Path(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Path after loss = %v, want ErrNotConnected", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)
	mock.SetFailureMode(testutil.ModeTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetProperty(ctx, "path")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestErrorResponse(t *testing.T) {
	mock := newMock(t)
	c := dial(t, mock)

	_, err := c.Command(context.Background(), "set_property", "pause")
	testutil.AssertErrorContains(t, err, "invalid parameter", "bad set_property")
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(context.Background(), "/nonexistent/whispersub.sock", nil, nil)
	testutil.AssertErrorContains(t, err, "connect to player socket", "dial error")
}
