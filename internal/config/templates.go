package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# gymon daemon configuration.
# Durations use Go syntax (500ms, 5s, 1m). Omitted keys keep their defaults.

`

type templateDoc struct {
	ListenAddr         string      `toml:"listen_addr" comment:"bind host; empty listens on every interface"`
	Port               int         `toml:"port" comment:"control protocol port"`
	BufferSize         int         `toml:"buffer_size" comment:"per-connection request buffer in bytes (16-4096)"`
	ReadPollInterval   string      `toml:"read_poll_interval" comment:"socket poll bound for cancellation checks"`
	InvokeTimeout      string      `toml:"invoke_timeout" comment:"per-invocation limit; 0s disables it"`
	ServiceCommand     string      `toml:"service_command" comment:"control tool; the verb and instance are appended"`
	Shell              string      `toml:"shell"`
	InstanceConfigPath string      `toml:"instance_config_path" comment:"per-instance configuration; %d is the instance id"`
	AdminAddr          string      `toml:"admin_addr" comment:"admin HTTP listener; empty disables it"`
	AdminToken         string      `toml:"admin_token" comment:"bearer token for /metrics and /connections; empty leaves them open"`
	LogFile            string      `toml:"log_file" comment:"JSON log destination when not running with --console"`
	ResolveRetryDelay  string      `toml:"resolve_retry_delay" comment:"wait between bind address resolution retries"`
	Invoker            string      `toml:"invoker" comment:"local or ssh"`
	SSH                templateSSH `toml:"ssh" comment:"remote invoker, used when invoker = \"ssh\""`
}

type templateSSH struct {
	Host                        string `toml:"host"`
	Port                        int    `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

func templateFor(cfg Config) templateDoc {
	return templateDoc{
		ListenAddr:         cfg.ListenAddr,
		Port:               cfg.Port,
		BufferSize:         cfg.BufferSize,
		ReadPollInterval:   cfg.ReadPollInterval.String(),
		InvokeTimeout:      cfg.InvokeTimeout.String(),
		ServiceCommand:     cfg.ServiceCommand,
		Shell:              cfg.Shell,
		InstanceConfigPath: cfg.InstanceConfigPath,
		AdminAddr:          cfg.AdminAddr,
		AdminToken:         cfg.AdminToken,
		LogFile:            cfg.LogFile,
		ResolveRetryDelay:  cfg.ResolveRetryDelay.String(),
		Invoker:            cfg.Invoker,
		SSH: templateSSH{
			Host:                        cfg.SSH.Host,
			Port:                        cfg.SSH.Port,
			User:                        cfg.SSH.User,
			KeyPath:                     cfg.SSH.KeyPath,
			KnownHostsPath:              cfg.SSH.KnownHostsPath,
			InsecureSkipHostKeyChecking: cfg.SSH.InsecureSkipHostKeyChecking,
			Timeout:                     cfg.SSH.Timeout.String(),
		},
	}
}

// Template renders cfg as a commented TOML document that Load accepts.
func Template(cfg Config) (string, error) {
	body, err := toml.Marshal(templateFor(cfg))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(body), nil
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	template, err := Template(DefaultConfig())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
