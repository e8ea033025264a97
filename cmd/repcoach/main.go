package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/feedback"
	"github.com/claude/repcoach/internal/heartrate"
	repmcp "github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/server"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("RepCoach starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect database
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	registry, err := coach.RegistryWithFile(cfg.ExercisesFile)
	if err != nil {
		log.Error("failed to load exercises", "path", cfg.ExercisesFile, "error", err)
		os.Exit(1)
	}
	log.Info("exercises loaded", "count", len(registry.Configs()))

	reg := metrics.NewRegistry()
	m := metrics.NewManager("repcoach", "", reg)

	// Heart-rate sensor (optional)
	var hr heartrate.Source = heartrate.Disabled{}
	var poller *heartrate.Poller
	if cfg.HeartRate.URL != "" {
		poller = heartrate.NewPoller(cfg.HeartRate.URL, cfg.HeartRate.Interval, cfg.HeartRate.Timeout, m, log)
		hr = poller
		log.Info("heart-rate polling enabled", "url", cfg.HeartRate.URL, "limit_bpm", cfg.HeartRate.LimitBPM)
	}

	sessions := session.NewManager(registry, db, hr, session.Options{
		Cooldowns: feedback.Cooldowns{
			Rep:        cfg.Feedback.Rep,
			Warning:    cfg.Feedback.Warning,
			Motivation: cfg.Feedback.Motivation,
			Default:    cfg.Feedback.Default,
		},
		MotivationEvery: cfg.Feedback.MotivationEvery,
		HeartRateLimit:  cfg.HeartRate.LimitBPM,
	}, m, log)

	// Create server
	srv := server.New(db, sessions, registry, hr, m, cfg.Auth.APIKey, log)
	srv.SetMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mcpSrv := repmcp.New(db, registry, Version, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, err := strconv.Atoi(r.Header.Get("X-User-ID")); err == nil && id > 0 {
				return repmcp.WithUserID(ctx, id)
			}
			return ctx
		}),
	))

	// Listener: tsnet or plain HTTP
	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if poller != nil {
		g.Go(func() error { return poller.Run(gctx) })
	}
	g.Go(func() error {
		every := cfg.Sessions.IdleTimeout / 4
		if every < time.Second {
			every = time.Second
		}
		return sessions.RunReaper(gctx, every, cfg.Sessions.IdleTimeout)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sessions.Shutdown(shutdownCtx)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
