package hub

import (
	"sync"
	"testing"
	"time"
)

// fakeConn records written messages and blocks reads until closed.
type fakeConn struct {
	mu      sync.Mutex
	written []Message
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errConnClosed
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgType := JSONMessage
	if messageType == 2 { // websocket.BinaryMessage
		msgType = BinaryMessage
	}
	f.written = append(f.written, Message{Type: msgType, Data: data})
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.written))
	copy(out, f.written)
	return out
}

var errConnClosed = &connClosedError{}

type connClosedError struct{}

func (*connClosedError) Error() string { return "connection closed" }

func waitForCond(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestHub_BroadcastToClients(t *testing.T) {
	h := New("test")
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	client := NewClient(h, conn)
	go client.Run()

	waitForCond(t, func() bool { return h.ClientCount() == 1 }, "client registration")

	if err := h.BroadcastJSON(map[string]string{"avatar_state": "speaking"}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	waitForCond(t, func() bool { return len(conn.messages()) >= 1 }, "message delivery")

	msgs := conn.messages()
	if string(msgs[0].Data) != `{"avatar_state":"speaking"}` {
		t.Errorf("Unexpected payload: %s", msgs[0].Data)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	h := New("test")
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	client := NewClient(h, conn)
	go client.Run()

	waitForCond(t, func() bool { return h.ClientCount() == 1 }, "client registration")

	conn.Close()
	waitForCond(t, func() bool { return h.ClientCount() == 0 }, "client removal")
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := New("test")
	go h.Run()
	defer h.Stop()

	waitForCond(t, h.IsRunning, "hub start")

	// No clients: broadcasts are absorbed, never block.
	for i := 0; i < 10; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
	}
	if h.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", h.ClientCount())
	}
}

func TestHub_Stop(t *testing.T) {
	h := New("test")
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	waitForCond(t, h.IsRunning, "hub start")

	h.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Idempotent.
	h.Stop()
}
