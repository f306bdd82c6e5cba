package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gymon/internal/testutil/testlog"
)

func TestShellInvokerCapturesCombinedOutput(t *testing.T) {
	testlog.Start(t)
	out, err := ShellInvoker{}.Invoke(context.Background(), "echo 'gymea0: OK'; echo 'gymea1: FAILED' 1>&2")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(out, "gymea0: OK") || !strings.Contains(out, "gymea1: FAILED") {
		t.Fatalf("expected stdout and stderr captured, got %q", out)
	}
}

func TestShellInvokerNonZeroExitKeepsOutput(t *testing.T) {
	out, err := ShellInvoker{}.Invoke(context.Background(), "echo 'gymea2: FAILED'; exit 3")
	if err != nil {
		t.Fatalf("exit status must not fail the invocation: %v", err)
	}
	if strings.TrimSpace(out) != "gymea2: FAILED" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestShellInvokerMissingShell(t *testing.T) {
	shell := filepath.Join(t.TempDir(), "no-such-shell")
	if _, err := (ShellInvoker{Shell: shell}).Invoke(context.Background(), "true"); !errors.Is(err, ErrInvocation) {
		t.Fatalf("expected ErrInvocation, got %v", err)
	}
}

func TestShellInvokerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := (ShellInvoker{}).Invoke(ctx, "sleep 5"); !errors.Is(err, ErrInvocation) {
		t.Fatalf("expected ErrInvocation on timeout, got %v", err)
	}
}

func TestSSHInvokerAddress(t *testing.T) {
	r := SSHInvoker{}
	if _, err := r.address(); !errors.Is(err, ErrSSHConfig) {
		t.Fatalf("expected host validation error, got %v", err)
	}

	r.Host = "gymea-host"
	addr, err := r.address()
	if err != nil {
		t.Fatalf("unexpected address error: %v", err)
	}
	if addr != "gymea-host:22" {
		t.Fatalf("expected default ssh port, got %q", addr)
	}

	r.Host = "gymea-host:2222"
	if addr, _ := r.address(); addr != "gymea-host:2222" {
		t.Fatalf("expected explicit host port kept, got %q", addr)
	}
}

func TestSSHInvokerValidate(t *testing.T) {
	r := SSHInvoker{Host: "gymea-host"}
	if err := r.Validate(); !errors.Is(err, ErrSSHConfig) {
		t.Fatalf("expected missing user error, got %v", err)
	}
	r.User = "gymon"
	if err := r.Validate(); !errors.Is(err, ErrSSHConfig) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	r.KeyPath = "/etc/gymon/id_ed25519"
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSSHInvokerUnreadableKeyFailsInvocation(t *testing.T) {
	r := SSHInvoker{
		Host:    "127.0.0.1",
		Port:    "1",
		User:    "gymon",
		KeyPath: filepath.Join(t.TempDir(), "missing"),
		Timeout: time.Second,
	}
	if _, err := r.Invoke(context.Background(), "service gymea status 2>&1"); !errors.Is(err, ErrInvocation) {
		t.Fatalf("expected ErrInvocation, got %v", err)
	}
}
