package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/gymon/internal/gymeacfg"
	"github.com/danmuck/gymon/internal/protocol/frame"
	"github.com/danmuck/gymon/internal/server"
	"github.com/danmuck/gymon/internal/tools"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Invoker kinds.
const (
	InvokerLocal = "local"
	InvokerSSH   = "ssh"
)

// Config is the resolved daemon configuration.
type Config struct {
	ListenAddr         string
	Port               int
	BufferSize         int
	ReadPollInterval   time.Duration
	InvokeTimeout      time.Duration
	ServiceCommand     string
	Shell              string
	InstanceConfigPath string
	AdminAddr          string
	AdminToken         string
	LogFile            string
	ResolveRetryDelay  time.Duration
	Invoker            string
	SSH                SSHConfig
}

// SSHConfig configures the remote invoker.
type SSHConfig struct {
	Host                        string
	Port                        int
	User                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:         "",
		Port:               server.DefaultPort,
		BufferSize:         frame.DefaultCapacity,
		ReadPollInterval:   time.Second,
		ServiceCommand:     "service gymea",
		Shell:              tools.DefaultShell,
		InstanceConfigPath: gymeacfg.DefaultPathTemplate,
		LogFile:            "/var/log/gymon.log",
		ResolveRetryDelay:  5 * time.Second,
		Invoker:            InvokerLocal,
		SSH: SSHConfig{
			Port:    22,
			Timeout: 10 * time.Second,
		},
	}
}

type fileConfig struct {
	ListenAddr         string        `toml:"listen_addr"`
	Port               int           `toml:"port"`
	BufferSize         int           `toml:"buffer_size"`
	ReadPollInterval   string        `toml:"read_poll_interval"`
	InvokeTimeout      string        `toml:"invoke_timeout"`
	ServiceCommand     string        `toml:"service_command"`
	Shell              string        `toml:"shell"`
	InstanceConfigPath string        `toml:"instance_config_path"`
	AdminAddr          string        `toml:"admin_addr"`
	AdminToken         string        `toml:"admin_token"`
	LogFile            string        `toml:"log_file"`
	ResolveRetryDelay  string        `toml:"resolve_retry_delay"`
	Invoker            string        `toml:"invoker"`
	SSH                fileSSHConfig `toml:"ssh"`
}

type fileSSHConfig struct {
	Host                        string `toml:"host"`
	Port                        int    `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

// Load overlays the keys present in the TOML file at path onto DefaultConfig
// and validates the result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load gymon config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("service_command") {
		cfg.ServiceCommand = strings.TrimSpace(raw.ServiceCommand)
	}
	if meta.IsDefined("shell") {
		cfg.Shell = strings.TrimSpace(raw.Shell)
	}
	if meta.IsDefined("instance_config_path") {
		cfg.InstanceConfigPath = strings.TrimSpace(raw.InstanceConfigPath)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("invoker") {
		cfg.Invoker = strings.ToLower(strings.TrimSpace(raw.Invoker))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_poll_interval", raw.ReadPollInterval, &cfg.ReadPollInterval},
		{"invoke_timeout", raw.InvokeTimeout, &cfg.InvokeTimeout},
		{"resolve_retry_delay", raw.ResolveRetryDelay, &cfg.ResolveRetryDelay},
		{"ssh.timeout", raw.SSH.Timeout, &cfg.SSH.Timeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("ssh", "host") {
		cfg.SSH.Host = strings.TrimSpace(raw.SSH.Host)
	}
	if meta.IsDefined("ssh", "port") {
		cfg.SSH.Port = raw.SSH.Port
	}
	if meta.IsDefined("ssh", "user") {
		cfg.SSH.User = strings.TrimSpace(raw.SSH.User)
	}
	if meta.IsDefined("ssh", "key_path") {
		cfg.SSH.KeyPath = strings.TrimSpace(raw.SSH.KeyPath)
	}
	if meta.IsDefined("ssh", "known_hosts_path") {
		cfg.SSH.KnownHostsPath = strings.TrimSpace(raw.SSH.KnownHostsPath)
	}
	if meta.IsDefined("ssh", "insecure_skip_host_key_checking") {
		cfg.SSH.InsecureSkipHostKeyChecking = raw.SSH.InsecureSkipHostKeyChecking
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.BufferSize < frame.MinCapacity || cfg.BufferSize > frame.MaxCapacity {
		return fmt.Errorf("%w: buffer_size %d (want %d-%d)",
			ErrInvalidConfig, cfg.BufferSize, frame.MinCapacity, frame.MaxCapacity)
	}
	if cfg.ReadPollInterval < 0 || cfg.InvokeTimeout < 0 || cfg.ResolveRetryDelay < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if !strings.Contains(cfg.InstanceConfigPath, "%d") {
		return fmt.Errorf("%w: instance_config_path %q has no %%d instance placeholder",
			ErrInvalidConfig, cfg.InstanceConfigPath)
	}
	if strings.TrimSpace(cfg.ServiceCommand) == "" {
		return fmt.Errorf("%w: service_command is required", ErrInvalidConfig)
	}
	switch cfg.Invoker {
	case InvokerLocal:
	case InvokerSSH:
		if err := cfg.sshInvoker().Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown invoker %q", ErrInvalidConfig, cfg.Invoker)
	}
	return nil
}

// ListenAddress joins listen_addr and port.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.ListenAddr, strconv.Itoa(c.Port))
}

func (c Config) ServerConfig() server.Config {
	backoff := server.DefaultResolveBackoff()
	backoff.InitialDelay = c.ResolveRetryDelay
	return server.Config{
		Addr:             c.ListenAddress(),
		BufferSize:       c.BufferSize,
		ReadPollInterval: c.ReadPollInterval,
		ResolveBackoff:   backoff,
	}
}

// NewInvoker builds the control command runner selected by invoker.
func (c Config) NewInvoker() (tools.Invoker, error) {
	switch c.Invoker {
	case InvokerLocal, "":
		return tools.ShellInvoker{Shell: c.Shell}, nil
	case InvokerSSH:
		inv := c.sshInvoker()
		if err := inv.Validate(); err != nil {
			return nil, err
		}
		return inv, nil
	default:
		return nil, fmt.Errorf("%w: unknown invoker %q", ErrInvalidConfig, c.Invoker)
	}
}

func (c Config) sshInvoker() tools.SSHInvoker {
	port := ""
	if c.SSH.Port > 0 {
		port = strconv.Itoa(c.SSH.Port)
	}
	return tools.SSHInvoker{
		Host:                        c.SSH.Host,
		Port:                        port,
		User:                        c.SSH.User,
		KeyPath:                     c.SSH.KeyPath,
		KnownHostsPath:              c.SSH.KnownHostsPath,
		InsecureSkipHostKeyChecking: c.SSH.InsecureSkipHostKeyChecking,
		Timeout:                     c.SSH.Timeout,
	}
}
