package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gymon/internal/tools"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gymon.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
port = 4000
buffer_size = 256
invoke_timeout = "30s"
service_command = "/usr/sbin/service gymea"
admin_addr = "127.0.0.1:9100"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 4000 || cfg.BufferSize != 256 {
		t.Fatalf("unexpected port/buffer: %d/%d", cfg.Port, cfg.BufferSize)
	}
	if cfg.InvokeTimeout != 30*time.Second {
		t.Fatalf("unexpected invoke timeout: %s", cfg.InvokeTimeout)
	}
	if cfg.ServiceCommand != "/usr/sbin/service gymea" || cfg.AdminAddr != "127.0.0.1:9100" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}

	def := DefaultConfig()
	if cfg.ReadPollInterval != def.ReadPollInterval || cfg.ResolveRetryDelay != 5*time.Second {
		t.Fatalf("undefined durations must keep defaults: %+v", cfg)
	}
	if cfg.InstanceConfigPath != def.InstanceConfigPath || cfg.Invoker != InvokerLocal {
		t.Fatalf("undefined keys must keep defaults: %+v", cfg)
	}
	if cfg.ListenAddress() != ":4000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "prot = 4000\n")
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `read_poll_interval = "soon"`+"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "read_poll_interval") {
		t.Fatalf("expected read_poll_interval parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 70000 }},
		{"small buffer", func(c *Config) { c.BufferSize = 8 }},
		{"large buffer", func(c *Config) { c.BufferSize = 8192 }},
		{"placeholder", func(c *Config) { c.InstanceConfigPath = "/opt/gymea/CurrentConfigs.xml" }},
		{"invoker", func(c *Config) { c.Invoker = "telnet" }},
		{"ssh without host", func(c *Config) { c.Invoker = InvokerSSH }},
		{"negative timeout", func(c *Config) { c.InvokeTimeout = -time.Second }},
		{"service command", func(c *Config) { c.ServiceCommand = " " }},
	}
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestLoadSSHInvoker(t *testing.T) {
	path := writeConfig(t, `
invoker = "SSH"

[ssh]
host = "gymea-host"
user = "gymea"
key_path = "/etc/gymon/id_ed25519"
timeout = "3s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SSH.Port != 22 || cfg.SSH.Timeout != 3*time.Second {
		t.Fatalf("unexpected ssh config: %+v", cfg.SSH)
	}
	inv, err := cfg.NewInvoker()
	if err != nil {
		t.Fatalf("invoker: %v", err)
	}
	sshInv, ok := inv.(tools.SSHInvoker)
	if !ok {
		t.Fatalf("expected ssh invoker, got %T", inv)
	}
	if sshInv.Host != "gymea-host" || sshInv.Port != "22" || sshInv.User != "gymea" {
		t.Fatalf("unexpected ssh invoker: %+v", sshInv)
	}
}

func TestNewInvokerLocal(t *testing.T) {
	inv, err := DefaultConfig().NewInvoker()
	if err != nil {
		t.Fatalf("invoker: %v", err)
	}
	if shell, ok := inv.(tools.ShellInvoker); !ok || shell.Shell != tools.DefaultShell {
		t.Fatalf("unexpected local invoker %#v", inv)
	}
}

func TestServerConfigCarriesSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1"
	cfg.ResolveRetryDelay = 2 * time.Second
	sc := cfg.ServerConfig()
	if sc.Addr != "127.0.0.1:32001" || sc.BufferSize != 1024 {
		t.Fatalf("unexpected server config %+v", sc)
	}
	if sc.ResolveBackoff.Delay(3) != 2*time.Second {
		t.Fatalf("resolve backoff must stay fixed, got %s", sc.ResolveBackoff.Delay(3))
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gymon.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if !strings.Contains(string(raw), "instance_config_path") || !strings.Contains(string(raw), "# ") {
		t.Fatalf("template missing keys or comments:\n%s", raw)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := DefaultConfig()
	if cfg.Port != def.Port || cfg.BufferSize != def.BufferSize || cfg.ReadPollInterval != def.ReadPollInterval {
		t.Fatalf("template did not round trip: %+v", cfg)
	}
	if cfg.SSH.Timeout != def.SSH.Timeout || cfg.InstanceConfigPath != def.InstanceConfigPath {
		t.Fatalf("template did not round trip: %+v", cfg)
	}
}
