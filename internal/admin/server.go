package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/gymon/internal/auth"
	"github.com/danmuck/gymon/internal/observability"
	"github.com/danmuck/gymon/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownGrace = 5 * time.Second

// ControlServer is the view of the control socket the admin surface reports on.
type ControlServer interface {
	Addr() net.Addr
	ConnectionCount() int
	Snapshot() []server.ConnectionInfo
}

type Config struct {
	Addr        string
	Version     string
	CORSOrigins []string
	// Token, when set, is required as a bearer token on /metrics and /connections.
	Token string
}

// Server serves health, readiness, metrics and the live connection list.
type Server struct {
	cfg     Config
	control ControlServer
	started time.Time
	router  *gin.Engine
}

func New(cfg Config, control ControlServer) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Component("admin")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		cfg:     cfg,
		control: control,
		started: time.Now(),
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		addr := s.listenAddr()
		status := http.StatusOK
		if addr == "" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":       addr != "",
			"listen_addr": addr,
			"connections": s.connectionCount(),
			"version":     s.cfg.Version,
		})
	})

	private := s.router.Group("/")
	if token := strings.TrimSpace(s.cfg.Token); token != "" {
		private.Use(auth.Middleware(auth.StaticToken{Token: token}))
	}

	private.GET("/metrics", gin.WrapH(promhttp.Handler()))

	private.GET("/connections", func(c *gin.Context) {
		list := []server.ConnectionInfo{}
		if s.control != nil {
			list = s.control.Snapshot()
		}
		c.JSON(http.StatusOK, gin.H{
			"count":       len(list),
			"connections": list,
		})
	})
}

func (s *Server) listenAddr() string {
	if s.control == nil {
		return ""
	}
	addr := s.control.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (s *Server) connectionCount() int {
	if s.control == nil {
		return 0
	}
	return s.control.ConnectionCount()
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              strings.TrimSpace(s.cfg.Addr),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("admin server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
