package server

import (
	"errors"
	"net"
)

var (
	ErrInvalidConfig = errors.New("server: invalid config")
	ErrResolve       = errors.New("server: address resolution failed")
	ErrAccept        = errors.New("server: accept failed")
	ErrSend          = errors.New("server: send failed")
	ErrNotListening  = errors.New("server: not listening")
)

// isTransient reports whether a socket error should be retried in place.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return isTransientErrno(err)
}
