package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/viant/jsonrpc/auth"
	"github.com/viant/jsonrpc/config"
	"github.com/viant/jsonrpc/httpapi"
	"github.com/viant/jsonrpc/internal/logging"
	"github.com/viant/jsonrpc/metrics"
	"github.com/viant/jsonrpc/process"
	"github.com/viant/jsonrpc/proxy"
	"github.com/viant/jsonrpc/registry"

	redis "github.com/redis/go-redis/v9"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge",
	Long: `Start the bridge, serving the Streamable HTTP front-end for every
configured MCP server until SIGINT or SIGTERM. A server's subprocess is
spawned per session, on its initialize request.

Examples:
  mcpbridged start
  mcpbridged --config /path/to/mcpbridge.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if file := config.ConfigFileUsed(); file != "" {
		logger.Info("loaded config", "file", file)
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires the five protocol components together and serves until ctx is
// cancelled, then shuts the HTTP server down and drains sessions.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	jlogger := logging.NewSlogErrorAdapter(logger)

	collectors := metrics.New()

	servers := make(map[string]process.ServerConfig, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		pc := process.ServerConfig{
			Name:     sc.Name,
			Command:  sc.Command,
			Args:     sc.Args,
			Env:      sc.Env,
			Dir:      sc.Dir,
			Endpoint: sc.Endpoint,
		}
		servers[pc.Endpoint()] = pc
	}

	supervisorOpts := process.Options{
		MaxRestartAttempts: cfg.MaxRestartAttempts,
		RestartDelay:       cfg.RestartDelay(),
		StartConfirmWindow: cfg.ProcessStartTimeout(),
	}
	supervisor := process.NewSupervisor(supervisorOpts, jlogger)

	reg := registry.New(registry.Options{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout(),
	}, jlogger, func(s *registry.Session) {
		_ = supervisor.Kill(s.HandleId)
	})
	reg.SetMetrics(collectors)
	reg.StartSweeper()
	defer reg.Stop()

	px := proxy.New(supervisor, reg, servers, proxy.Config{
		RequestTimeout: cfg.RequestTimeout(),
		BatchTimeout:   cfg.BatchTimeout(),
	}, jlogger)
	px.SetMetrics(collectors)
	px.Start()
	defer px.Stop()

	authCfg, err := buildAuthConfig(cfg.Auth)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Proxy:    px,
		Registry: reg,
		Servers:  servers,
		Logger:   jlogger,
		CORS: httpapi.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Auth:       authCfg,
		MetricsMux: collectors.Handler(),
	})

	httpSrv := &http.Server{
		Addr:    cfg.Listener,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listener, "servers", len(cfg.Servers))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx, httpSrv); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	reg.DestroyAll()
	supervisor.KillAll()
	logger.Info("mcpbridged stopped")
	return nil
}

func buildAuthConfig(cfg config.AuthConfig) (httpapi.AuthConfig, error) {
	if !cfg.Enabled {
		return httpapi.AuthConfig{Enabled: false}, nil
	}
	var store auth.Store
	if cfg.RedisDSN != "" {
		opts, err := redis.ParseURL(cfg.RedisDSN)
		if err != nil {
			return httpapi.AuthConfig{}, fmt.Errorf("config: invalid auth.redis_dsn: %w", err)
		}
		store = auth.NewRedisStore(redis.NewClient(opts), "mcpbridge:")
	} else {
		store = auth.NewMemoryStore(cfg.Tokens...)
	}
	return httpapi.AuthConfig{Enabled: true, Store: store}, nil
}
