package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultShell interprets invocation lines on the local host.
const DefaultShell = "/bin/sh"

// waitDelay bounds how long output pipes held by orphaned children may
// delay a cancelled invocation.
const waitDelay = time.Second

var ErrInvocation = errors.New("tools: invocation failed")

// Invoker executes one command line and returns its combined output.
type Invoker interface {
	Invoke(ctx context.Context, commandLine string) (string, error)
}

// ShellInvoker executes command lines through a local shell.
type ShellInvoker struct {
	Shell string
}

// Invoke runs commandLine with `<shell> -c`, capturing stdout and stderr together.
func (r ShellInvoker) Invoke(ctx context.Context, commandLine string) (string, error) {
	shell := strings.TrimSpace(r.Shell)
	if shell == "" {
		shell = DefaultShell
	}
	cmd := exec.CommandContext(ctx, shell, "-c", commandLine)
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvocation, commandLine, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debug().
			Str("command", commandLine).
			Int("exit_code", exitErr.ExitCode()).
			Msg("control command exited non-zero")
		return out.String(), nil
	}
	return "", fmt.Errorf("%w: %q: %v", ErrInvocation, commandLine, err)
}
