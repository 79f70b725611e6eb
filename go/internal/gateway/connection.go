package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Connection is a Session backed by a gorilla WebSocket. Writes go through
// a buffered queue drained by writePump; the queue is never closed, done
// signals shutdown instead.
type Connection struct {
	id       string
	identity string
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	config   ConnectionConfig

	errMu    sync.Mutex
	writeErr error

	ConnectedAt time.Time
}

func newConnection(ws *websocket.Conn, identity string, config ConnectionConfig) *Connection {
	size := config.SendBufferSize
	if size <= 0 {
		size = 256
	}
	return &Connection{
		id:          uuid.New().String(),
		identity:    identity,
		ws:          ws,
		send:        make(chan []byte, size),
		done:        make(chan struct{}),
		config:      config,
		ConnectedAt: time.Now(),
	}
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) Identity() string { return c.identity }

// Send queues payload without blocking
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which flushes what is queued, sends a close
// frame and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// fail records a transport fault and closes the connection
func (c *Connection) fail(err error) {
	c.errMu.Lock()
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.errMu.Unlock()
	c.Close()
}

// WriteErr returns the write fault that closed the connection, or nil when
// it was closed on purpose.
func (c *Connection) WriteErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.writeErr
}

// Done is closed once Close has been called
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				c.fail(err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.fail(err)
				return
			}

		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// prepareRead applies the read limit and keeps the read deadline moving
// with every pong.
func (c *Connection) prepareRead() {
	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})
}

func (c *Connection) readMessage() ([]byte, error) {
	_, message, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	return message, nil
}
