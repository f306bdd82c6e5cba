package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/gymon/internal/admin"
	"github.com/danmuck/gymon/internal/config"
	"github.com/danmuck/gymon/internal/gymeacfg"
	"github.com/danmuck/gymon/internal/logging"
	"github.com/danmuck/gymon/internal/observability"
	"github.com/danmuck/gymon/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	console, _ := cmd.Flags().GetBool("console")
	if err := logging.ConfigureRuntime(console, cfg.LogFile); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("admin-addr") {
		addr, _ := cmd.Flags().GetString("admin-addr")
		cfg.AdminAddr = strings.TrimSpace(addr)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	invoker, err := cfg.NewInvoker()
	if err != nil {
		return err
	}
	store := gymeacfg.NewXMLStore(cfg.InstanceConfigPath)
	dispatcher := &server.Dispatcher{
		Invoker:        invoker,
		Offsets:        store,
		Labels:         gymeacfg.NewDisplayCache(store),
		ServiceCommand: cfg.ServiceCommand,
		InvokeTimeout:  cfg.InvokeTimeout,
	}
	srv, err := server.New(cfg.ServerConfig(), dispatcher)
	if err != nil {
		return err
	}
	observability.RegisterMetrics()

	log.Info().
		Str("version", version).
		Str("listen", cfg.ListenAddress()).
		Str("invoker", cfg.Invoker).
		Str("instance_config_path", cfg.InstanceConfigPath).
		Msg("gymon starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if cfg.AdminAddr != "" {
		adm := admin.New(admin.Config{Addr: cfg.AdminAddr, Version: version, Token: cfg.AdminToken}, srv)
		go func() {
			adminErr <- adm.Run(ctx)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	select {
	case err := <-serveErr:
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("control server stopped")
		}
		return err
	case err := <-adminErr:
		if err != nil {
			log.Error().Err(err).Msg("admin server stopped")
			cancel()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}
