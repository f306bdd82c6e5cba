package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

var ErrSSHConfig = errors.New("tools: invalid ssh invoker config")

// SSHInvoker executes command lines on a remote host running the Gymea service.
type SSHInvoker struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// Validate checks the fields needed before any dial is attempted.
func (r SSHInvoker) Validate() error {
	if _, err := r.address(); err != nil {
		return err
	}
	if strings.TrimSpace(r.User) == "" {
		return fmt.Errorf("%w: user is required", ErrSSHConfig)
	}
	if strings.TrimSpace(r.KeyPath) == "" {
		return fmt.Errorf("%w: key path is required", ErrSSHConfig)
	}
	return nil
}

// Invoke runs commandLine in a fresh SSH session. Cancelling ctx closes the
// session and abandons the output.
func (r SSHInvoker) Invoke(ctx context.Context, commandLine string) (string, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvocation, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: open session: %v", ErrInvocation, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(commandLine)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", fmt.Errorf("%w: %q: %v", ErrInvocation, commandLine, ctx.Err())
	case res := <-done:
		var exitErr *ssh.ExitError
		if res.err != nil && !errors.As(res.err, &exitErr) {
			return "", fmt.Errorf("%w: %q: %v", ErrInvocation, commandLine, res.err)
		}
		return string(res.out), nil
	}
}

func (r SSHInvoker) dial(ctx context.Context) (*ssh.Client, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	address, _ := r.address()
	config, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

// address resolves Host and Port into a dialable endpoint, defaulting to port 22.
func (r SSHInvoker) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return "", fmt.Errorf("%w: host is required", ErrSSHConfig)
	}
	if port := strings.TrimSpace(r.Port); port != "" {
		return net.JoinHostPort(host, port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, defaultSSHPort), nil
}

func (r SSHInvoker) clientConfig() (*ssh.ClientConfig, error) {
	signer, err := r.signer()
	if err != nil {
		return nil, err
	}
	hostKeys, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSHInvoker) signer() (ssh.Signer, error) {
	pem, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	if len(r.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(pem, r.Passphrase)
	}
	return ssh.ParsePrivateKey(pem)
}

func (r SSHInvoker) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.InsecureSkipHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: known hosts path not set and home dir unavailable", ErrSSHConfig)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}
