package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/vehicles/pkg/streaming"
)

const (
	outboxSize = 4096
	ackBuffer  = 16
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
	ackTimeout = 10 * time.Second
)

var errClosed = errors.New("mirror connection closed")

// connection keeps one WebSocket to the mirror server alive. A single
// supervisor goroutine owns the socket: it writes the outbox, redials after
// a failure and sends the hello first on every connect.
type connection struct {
	logger *slog.Logger
	target string
	retry  time.Duration

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	hello   []byte
	started bool
	closed  bool
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger: logger,
		retry:  minBackoff,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// open dials once so an unreachable server is reported to the caller, then
// hands the socket to the supervisor. hello goes out before anything queued.
func (c *connection) open(rawURL, secret string, hello []byte) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	c.target = u.String()

	conn, err := c.dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errClosed
	}
	c.hello = hello
	c.started = true
	c.mu.Unlock()

	go c.supervise(conn)
	return nil
}

func (c *connection) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) supervise(conn *ws.Conn) {
	defer close(c.exited)

	backoff := c.retry
	for {
		if conn != nil {
			err := c.serve(conn)
			if err == nil {
				return
			}
			c.logger.Warn("Mirror connection lost", "error", err)
			backoff = c.retry
		}

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		var err error
		conn, err = c.dial()
		if err != nil {
			c.logger.Warn("Mirror redial failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		c.logger.Info("Mirror reconnected")
	}
}

// serve pumps the outbox into conn until the socket fails or the connection
// is closed, in which case it returns nil. Messages that were queued while
// disconnected go out after the hello; anything dropped by a failed write is
// lost to the mirror only.
func (c *connection) serve(conn *ws.Conn) error {
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(conn) }()

	c.mu.Lock()
	hello := c.hello
	c.mu.Unlock()
	if hello != nil {
		if err := write(conn, hello); err != nil {
			return fmt.Errorf("sending hello: %w", err)
		}
	}

	for {
		select {
		case <-c.done:
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case err := <-readErr:
			return err
		case data := <-c.outbox:
			if err := write(conn, data); err != nil {
				return err
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readAcks forwards server acks until the socket fails.
func (c *connection) readAcks(conn *ws.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring mirror message", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// send queues data without blocking. A full outbox drops the message.
func (c *connection) send(data []byte) {
	select {
	case c.outbox <- data:
	default:
		c.logger.Warn("Mirror outbox full, dropping message")
	}
}

// awaitAck blocks until the server acknowledges a message of type msgType.
func (c *connection) awaitAck(msgType string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.acks:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-c.done:
			return fmt.Errorf("%w while waiting for ack of %q", errClosed, msgType)
		}
	}
}

// close stops the supervisor and waits for it to send the close frame.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	close(c.done)
	c.mu.Unlock()

	if started {
		<-c.exited
	}
	return nil
}
