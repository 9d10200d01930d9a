package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/portal/internal/config"
	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/ipc"
	"github.com/danmuck/portal/internal/lifecycle"
	"github.com/danmuck/portal/internal/logging"
	"github.com/danmuck/portal/internal/observability"
	"github.com/danmuck/portal/internal/portalreq"
)

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "", "path to daemon config.toml")
	service := flag.String("service", "", "override the service name")
	session := flag.String("session", "", "override the session id")
	debugAddr := flag.String("debug-addr", "", "serve /health and /metrics on this address")
	flag.Parse()

	logging.ConfigureRuntime()
	log := logging.New("portald")

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load daemon config")
	}
	if *service != "" {
		cfg.Service = *service
	}
	if *session != "" {
		cfg.SessionID = *session
	}
	if *debugAddr != "" {
		cfg.DebugAddr = *debugAddr
	}
	if cfg.SessionID == "" {
		cfg.SessionID = lifecycle.SessionID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("portald stopped")
	}
}

func run(ctx context.Context, cfg config.DaemonConfig, log zerolog.Logger) error {
	if _, err := lifecycle.EnsurePortalDirectory(cfg.SessionID); err != nil {
		return err
	}
	socketPath := lifecycle.SocketPath(cfg.SessionID, cfg.Service)

	if st, err := lifecycle.ReadState(cfg.SessionID, cfg.Service); err == nil {
		return fmt.Errorf("portald already running for this session (pid %d, socket %s)",
			st.PID, st.SocketPath)
	}

	observability.RegisterMetrics()

	server, err := ipc.Listen(ipc.ServerConfig{
		SocketPath: socketPath,
		Endpoint:   portalreq.Endpoint(),
		Logger:     log,
		NewStub: func(conn *ipc.Connection, clientID uint64) endpoint.Stub {
			svc := portalreq.NewMemoryService(log.With().Uint64("client", clientID).Logger())
			return portalreq.NewStub(svc, conn)
		},
		OnConnect: func(c *ipc.Connection) {
			log.Info().Uint64("client", c.ClientID()).Msg("client connected")
		},
		OnDisconnect: func(clientID uint64) {
			log.Info().Uint64("client", clientID).Msg("client disconnected")
		},
		MaxFrameBytes: cfg.MaxFrameBytes,
	})
	if err != nil {
		return err
	}

	st := lifecycle.State{
		PID:        os.Getpid(),
		SessionID:  cfg.SessionID,
		Service:    cfg.Service,
		SocketPath: socketPath,
		StartedAt:  startedAt,
	}
	if err := lifecycle.WriteState(st); err != nil {
		return err
	}
	defer lifecycle.RemoveState(cfg.SessionID, cfg.Service)

	if cfg.DebugAddr != "" {
		go serveDebug(ctx, cfg, log, server)
	}

	log.Info().
		Str("service", cfg.Service).
		Str("session", cfg.SessionID).
		Str("socket", socketPath).
		Msg("portald listening")
	return server.Serve(ctx)
}

// serveDebug exposes /health and /metrics for local inspection. It is
// best-effort; failures are logged and the daemon keeps serving.
func serveDebug(ctx context.Context, cfg config.DaemonConfig, log zerolog.Logger, server *ipc.MultiServer) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.RequestMetricsMiddleware(cfg.Service))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.Service,
			"session": cfg.SessionID,
			"clients": server.ClientCount(),
			"uptime":  time.Since(startedAt).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.DebugAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Str("addr", cfg.DebugAddr).Msg("debug server failed")
	}
}
