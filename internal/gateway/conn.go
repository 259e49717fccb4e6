package gateway

import (
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vesaa/gatewatch/internal/models"
)

// State is the lifecycle position of one connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Time allowed to write a frame to the peer.
const writeWait = 10 * time.Second

// conn is the server side of one WebSocket. It is owned by the goroutine
// running Server.serveConn; the shutdown watcher only touches it through
// closeWith, which is safe to call concurrently.
type conn struct {
	meta models.Connection
	ws   *websocket.Conn

	state  atomic.Int32
	frames atomic.Int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	// set once by the reading goroutine when Frames stops
	readErr error
}

func newConn(meta models.Connection, ws *websocket.Conn) *conn {
	c := &conn{
		meta: meta,
		ws:   ws,
		done: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *conn) State() State { return State(c.state.Load()) }

func (c *conn) setState(s State) { c.state.Store(int32(s)) }

// Frames yields inbound data frames in arrival order until the peer goes
// away or the socket is closed locally. Control frames are handled by the
// websocket library and never surface here.
func (c *conn) Frames() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				c.readErr = err
				return
			}
			c.frames.Add(1)
			if !yield(data) {
				return
			}
		}
	}
}

// writeText sends one text frame. Writes are serialized per connection.
func (c *conn) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// sendClose tells the peer we are going away. Errors are irrelevant here,
// the socket is closed right after.
func (c *conn) sendClose(code int, text string) {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second),
	)
}

// closeWith moves the connection through Closing to Closed exactly once and
// runs release between the two. Later calls are no-ops and return false.
func (c *conn) closeWith(release func()) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		_ = c.ws.Close()
		release()
		c.setState(StateClosed)
		close(c.done)
		closed = true
	})
	return closed
}
