package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/api"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/auth"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/config"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/store"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "server.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"session_retention", cfg.Server.Sessions.Retention,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Session registry with background retention eviction.
	st := store.New(cfg.Server.Sessions.Retention)
	go st.Run(ctx)

	// Event channel hub — companions and dashboards connect here.
	hub := ws.New(st, cfg.Server.Sessions.BroadcastInterval)
	go hub.Run(ctx)

	// REST API behind optional API key authentication.
	protect := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	rest := protect(api.New(st, hub))

	mux := http.NewServeMux()
	mux.Handle("/data", rest)
	mux.Handle("/api/", rest)
	mux.Handle("/socket", hub)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("server shutting down")
	srv.Shutdown(context.Background()) //nolint:errcheck
}
