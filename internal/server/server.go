package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/gymon/internal/observability"
	"github.com/danmuck/gymon/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultPort is the historical control port.
const DefaultPort = 32001

// Config configures the control socket.
type Config struct {
	Addr       string
	BufferSize int
	// ReadPollInterval bounds each blocking read or write so cancellation is
	// observed. Idle connections are never closed by it.
	ReadPollInterval time.Duration
	ResolveBackoff   Backoff
	// ResolveAttempts caps transient resolution retries. Zero retries forever.
	ResolveAttempts int
}

func DefaultConfig() Config {
	return Config{
		Addr:             net.JoinHostPort("", strconv.Itoa(DefaultPort)),
		BufferSize:       frame.DefaultCapacity,
		ReadPollInterval: time.Second,
		ResolveBackoff:   DefaultResolveBackoff(),
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithResolver replaces the DNS resolver used for the bind host.
func WithResolver(r Resolver) Option {
	return func(s *Server) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithClock replaces the clock that stamps replies.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server accepts clients and runs one Connection per client.
type Server struct {
	cfg           Config
	handler       Handler
	resolver      Resolver
	now           func() time.Time
	acceptBackoff Backoff

	lnMu sync.Mutex
	ln   net.Listener

	mu    sync.RWMutex
	conns map[string]*Connection

	serveMu sync.Mutex
}

func New(cfg Config, handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidConfig)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = frame.DefaultCapacity
	}
	if cfg.BufferSize < frame.MinCapacity || cfg.BufferSize > frame.MaxCapacity {
		return nil, fmt.Errorf("%w: buffer size %d (want %d-%d)",
			ErrInvalidConfig, cfg.BufferSize, frame.MinCapacity, frame.MaxCapacity)
	}
	if cfg.ReadPollInterval < 0 {
		return nil, fmt.Errorf("%w: read poll interval %s", ErrInvalidConfig, cfg.ReadPollInterval)
	}
	s := &Server{
		cfg:           cfg,
		handler:       handler,
		resolver:      net.DefaultResolver,
		now:           time.Now,
		acceptBackoff: defaultAcceptBackoff(),
		conns:         make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type finished struct {
	conn   *Connection
	reason CloseReason
}

// Serve runs the supervisor loop until ctx is cancelled or accept fails.
// It returns only after every connection goroutine has exited.
func (s *Server) Serve(ctx context.Context) error {
	if !s.serveMu.TryLock() {
		return fmt.Errorf("%w: already serving", ErrInvalidConfig)
	}
	defer s.serveMu.Unlock()

	if err := s.Listen(ctx); err != nil {
		return err
	}
	s.lnMu.Lock()
	ln := s.ln
	s.lnMu.Unlock()
	log.Info().Str("addr", ln.Addr().String()).Int("buffer_size", s.cfg.BufferSize).Msg("control server listening")

	connCtx, cancelConns := context.WithCancel(ctx)
	defer cancelConns()

	stop := make(chan struct{})
	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	done := make(chan finished)
	go s.acceptLoop(ln, accepted, acceptErr, stop)

	var serveErr error
	for running := true; running; {
		select {
		case nc := <-accepted:
			c := s.open(nc)
			go func() {
				done <- finished{conn: c, reason: c.Serve(connCtx)}
			}()
		case f := <-done:
			s.finish(f)
		case err := <-acceptErr:
			serveErr = fmt.Errorf("%w: %v", ErrAccept, err)
			log.Error().Err(err).Msg("accept failed, stopping control server")
			running = false
		case <-ctx.Done():
			log.Info().Int("connections", s.ConnectionCount()).Msg("control server shutting down")
			running = false
		}
	}

	close(stop)
	cancelConns()
	s.lnMu.Lock()
	_ = s.ln.Close()
	s.ln = nil
	s.lnMu.Unlock()
	s.closeAll()
	for s.ConnectionCount() > 0 {
		s.finish(<-done)
	}
	return serveErr
}

func (s *Server) acceptLoop(ln net.Listener, accepted chan<- net.Conn, acceptErr chan<- error, stop <-chan struct{}) {
	attempt := 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if isTransient(err) && !errors.Is(err, net.ErrClosed) {
				attempt++
				delay := s.acceptBackoff.Delay(attempt)
				log.Warn().Err(err).Dur("retry_in", delay).Msg("transient accept error")
				select {
				case <-stop:
					return
				case <-time.After(delay):
				}
				continue
			}
			acceptErr <- err
			return
		}
		attempt = 0
		select {
		case accepted <- nc:
		case <-stop:
			_ = nc.Close()
			return
		}
	}
}

func (s *Server) open(nc net.Conn) *Connection {
	buf, err := frame.NewBuffer(s.cfg.BufferSize)
	if err != nil {
		// New validated the size.
		panic(err)
	}
	c := newConnection(uuid.NewString(), nc, buf, s.handler, s.cfg.ReadPollInterval, s.now)

	s.mu.Lock()
	s.conns[c.id] = c
	active := len(s.conns)
	s.mu.Unlock()

	observability.ConnectionOpened()
	c.logger.Info().Int("active_clients", active).Msg("client connected")
	return c
}

func (s *Server) finish(f finished) {
	_ = f.conn.Close()

	s.mu.Lock()
	delete(s.conns, f.conn.id)
	remaining := len(s.conns)
	s.mu.Unlock()

	observability.ConnectionClosed(string(f.reason))
	f.conn.logger.Info().
		Str("reason", string(f.reason)).
		Uint64("requests", f.conn.requests.Load()).
		Int("active_clients", remaining).
		Msg("client disconnected")
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Snapshot lists live connections ordered by open time.
func (s *Server) Snapshot() []ConnectionInfo {
	s.mu.RLock()
	out := make([]ConnectionInfo, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.Info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Opened.Equal(out[j].Opened) {
			return out[i].ID < out[j].ID
		}
		return out[i].Opened.Before(out[j].Opened)
	})
	return out
}
