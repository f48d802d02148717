package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Conn is the transport surface the core needs from a websocket connection.
// *websocket.Conn satisfies it; tests substitute in-memory fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is the single live connection of an authenticated user. All
// outbound frames go through Enqueue and are written by one WritePump
// goroutine, which keeps delivery FIFO per connection.
type Client struct {
	User        models.User
	ConnID      string
	ConnectedAt time.Time

	conn       Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// NewClient wraps a connection for a user.
func NewClient(user models.User, conn Conn) *Client {
	return &Client{
		User:        user,
		ConnID:      newConnID(),
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		writerDone:  make(chan struct{}),
	}
}

// Enqueue hands a frame to the write pump. A closed client or a full buffer
// (slow consumer) reports an error; the caller treats both as a stale
// connection.
func (c *Client) Enqueue(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadMessage blocks for the next inbound frame.
func (c *Client) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

// WritePump writes queued frames in order until the client is closed or a
// write fails, then closes the underlying connection. Closing the connection
// also unblocks the read loop. Run exactly once, in its own goroutine.
func (c *Client) WritePump() {
	defer close(c.writerDone)
	defer c.conn.Close()
	for {
		select {
		case payload := <-c.send:
			if !c.write(payload) {
				return
			}
		case <-c.done:
			// Drain whatever was queued before the close signal.
			for {
				select {
				case payload := <-c.send:
					if !c.write(payload) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload) == nil
}

// Close signals shutdown. Safe to call any number of times from any
// goroutine; the write pump performs the actual teardown.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been told to shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WriterDone is closed once the write pump has exited and the underlying
// connection is closed.
func (c *Client) WriterDone() <-chan struct{} {
	return c.writerDone
}

func newConnID() string {
	return uuid.NewString()
}
