package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/gymon/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the position of a connection in its request cycle.
type State int32

const (
	StateReceiving State = iota
	StateDispatching
	StateReplying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateDispatching:
		return "dispatching"
	case StateReplying:
		return "replying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseReason explains why a connection left its request cycle.
type CloseReason string

const (
	ReasonEOF        CloseReason = "eof"
	ReasonReadError  CloseReason = "read_error"
	ReasonOverflow   CloseReason = "overflow"
	ReasonWriteError CloseReason = "write_error"
	ReasonShutdown   CloseReason = "shutdown"
)

// ConnectionInfo is a point-in-time view of one live connection.
type ConnectionInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	State    string    `json:"state"`
	Opened   time.Time `json:"opened"`
	Requests uint64    `json:"requests"`
}

// Connection runs the receive, dispatch, reply cycle for one client.
type Connection struct {
	id      string
	conn    net.Conn
	remote  string
	opened  time.Time
	buf     *frame.Buffer
	handler Handler
	poll    time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	state     atomic.Int32
	requests  atomic.Uint64
	closeOnce sync.Once
}

func newConnection(id string, conn net.Conn, buf *frame.Buffer, handler Handler, poll time.Duration, now func() time.Time) *Connection {
	if now == nil {
		now = time.Now
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Connection{
		id:      id,
		conn:    conn,
		remote:  remote,
		opened:  now(),
		buf:     buf,
		handler: handler,
		poll:    poll,
		now:     now,
		logger:  log.Logger.With().Str("conn", id).Str("remote", remote).Logger(),
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:       c.id,
		Remote:   c.remote,
		State:    c.State().String(),
		Opened:   c.opened,
		Requests: c.requests.Load(),
	}
}

// Close closes the socket. Safe to call more than once and from any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		err = c.conn.Close()
	})
	return err
}

// Serve loops until the connection must close and reports why.
// The caller owns closing the socket.
func (c *Connection) Serve(ctx context.Context) CloseReason {
	for {
		c.setState(StateReceiving)
		req, reason, ok := c.receive(ctx)
		if !ok {
			c.setState(StateClosed)
			return reason
		}

		c.setState(StateDispatching)
		body := c.handler.Handle(ctx, req)
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ReasonShutdown
		}

		c.setState(StateReplying)
		if err := c.send(ctx, body); err != nil {
			c.setState(StateClosed)
			if ctx.Err() != nil {
				return ReasonShutdown
			}
			c.logger.Warn().Err(err).Msg("reply not delivered")
			return ReasonWriteError
		}
		c.requests.Add(1)
	}
}

// receive reads until one complete request is buffered.
func (c *Connection) receive(ctx context.Context) (string, CloseReason, bool) {
	for {
		if ctx.Err() != nil {
			return "", ReasonShutdown, false
		}
		if c.poll > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.poll))
		}

		n, err := c.buf.ReadFrom(c.conn)
		if n > 0 {
			req, ok, ferr := c.buf.Next()
			if ferr != nil {
				c.logger.Warn().Int("buffered", c.buf.Len()).Msg("request exceeds buffer, closing")
				return "", ReasonOverflow, false
			}
			if ok {
				return req, "", true
			}
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, frame.ErrFrameTooLarge):
			return "", ReasonOverflow, false
		case errors.Is(err, io.EOF):
			return "", ReasonEOF, false
		case ctx.Err() != nil:
			return "", ReasonShutdown, false
		case isTransient(err):
			continue
		default:
			c.logger.Warn().Err(err).Msg("read failed")
			return "", ReasonReadError, false
		}
	}
}

// send writes one framed reply, accumulating partial writes.
func (c *Connection) send(ctx context.Context, body string) error {
	payload := frame.EncodeReply(body, c.now())
	written := 0
	for written < len(payload) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.poll > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.poll))
		}
		n, err := c.conn.Write(payload[written:])
		if n > 0 {
			written += n
		}
		if err != nil && !isTransient(err) {
			return fmt.Errorf("%w: %d of %d bytes: %v", ErrSend, written, len(payload), err)
		}
	}
	return nil
}
