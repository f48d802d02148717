package ws

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn for tests: inbound frames are fed through a
// channel, outbound frames are recorded in order.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	failWrites bool

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case payload, ok := <-f.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, payload, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// feed queues an inbound frame for the read loop.
func (f *fakeConn) feed(payload string) {
	f.inbound <- []byte(payload)
}

// endInput signals a clean remote close after all queued frames are read.
func (f *fakeConn) endInput() {
	close(f.inbound)
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

// eventsOfType decodes recorded frames and keeps those with the given type.
func (f *fakeConn) eventsOfType(t *testing.T, eventType string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, frame := range f.written() {
		var evt map[string]any
		if err := json.Unmarshal(frame, &evt); err != nil {
			t.Fatalf("undecodable frame %q: %v", frame, err)
		}
		if evt["type"] == eventType {
			events = append(events, evt)
		}
	}
	return events
}

// drain closes the client and waits for its write pump to flush.
func drain(t *testing.T, c *Client) {
	t.Helper()
	c.Close()
	select {
	case <-c.WriterDone():
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not finish")
	}
}
