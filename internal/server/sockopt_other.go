//go:build !unix

package server

import "syscall"

func isTransientErrno(error) bool {
	return false
}

func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
