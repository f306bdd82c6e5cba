package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// Resolver looks up the addresses of a bind host. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// resolve turns the configured address into a literal host:port.
// An empty or literal host skips the lookup.
func (s *Server) resolve(ctx context.Context) (string, error) {
	host, port, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("%w: addr %q: %v", ErrInvalidConfig, s.cfg.Addr, err)
	}
	if host == "" || net.ParseIP(host) != nil {
		return s.cfg.Addr, nil
	}

	for attempt := 1; ; attempt++ {
		addrs, err := s.resolver.LookupHost(ctx, host)
		if err == nil && len(addrs) > 0 {
			return net.JoinHostPort(addrs[0], port), nil
		}
		if err == nil {
			err = &net.DNSError{Err: "no addresses", Name: host}
		}
		if !temporaryResolveError(err) {
			return "", fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
		}
		if s.cfg.ResolveAttempts > 0 && attempt >= s.cfg.ResolveAttempts {
			return "", fmt.Errorf("%w: %s: gave up after %d attempts: %v", ErrResolve, host, attempt, err)
		}

		delay := s.cfg.ResolveBackoff.Delay(attempt)
		log.Warn().
			Str("host", host).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("bind address resolution failed")
		if err := sleepCtx(ctx, delay); err != nil {
			return "", err
		}
	}
}

func temporaryResolveError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout)
}

// Listen resolves and binds the control socket. It is a no-op once listening.
func (s *Server) Listen(ctx context.Context) error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return nil
	}

	addr, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr is the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
