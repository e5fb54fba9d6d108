package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/api"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/chart"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/config"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/delivery"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/gateway"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/queue"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/receiver"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/session"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/transport"
)

func main() {
	configPath := flag.String("config", "companion.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("companion starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	c := cfg.Companion
	slog.Info("config loaded",
		"listen_addr", c.ListenAddr,
		"server_url", c.ServerURL,
		"queue_path", c.QueuePath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := queue.Open(c.QueuePath)
	if err != nil {
		slog.Error("failed to open queue", "path", c.QueuePath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	rest := gateway.NewClient(c.ServerURL, c.Delivery.DirectTimeout,
		gateway.WithAPIKey(c.Auth.Key()))

	// The controller and the duplex client reference each other; closures
	// over ctrl break the cycle.
	var ctrl *session.Controller
	var uploader *delivery.Uploader
	duplex := gateway.NewDuplex(c.SocketURL(), gateway.Events{
		OnConnect: func() {
			ctrl.HandleDuplexConnect()
			// Connectivity is back; anything queued can drain now.
			uploader.Kick()
		},
		OnStartMonitoring: func(sessionID int64) { ctrl.Activate(sessionID) },
		OnStopMonitoring: func() {
			if err := ctrl.StopFromServer(ctx); err != nil && !errors.Is(err, session.ErrNotActive) {
				slog.Error("server-driven stop failed", "err", err)
			}
		},
		OnSetActivePatient: func(id, name string) {
			if err := ctrl.SetPatient(id, name); err != nil {
				slog.Warn("server patient selection rejected", "patient_id", id, "err", err)
			}
		},
	})

	uploader = delivery.NewUploader(store, rest, duplex.Connected)
	uploader.SetPacing(c.Delivery.FetchWindow, c.Delivery.RetryBackoff)
	go uploader.Run(ctx)

	pipeline := delivery.NewPipeline(rest, store, uploader, c.Delivery.DirectTimeout)
	go pipeline.Run(ctx)

	ring := chart.New(c.ChartCapacity)

	var recv *receiver.Receiver
	endpoint := transport.NewEndpoint(func(path string, payload []byte) {
		recv.HandleFrame(path, payload)
	})

	ctrl = session.NewController(duplex, rest, endpoint, store, pipeline, ring)
	recv = receiver.New(ring, pipeline, ctrl)

	go duplex.Run(ctx)

	go func() {
		err := config.Watch(ctx, *configPath, cfg, func(next *config.Config) {
			uploader.SetPacing(next.Companion.Delivery.FetchWindow, next.Companion.Delivery.RetryBackoff)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	handler := api.NewHandler(ctrl, ring, store, recv, endpoint.Connected, duplex.Connected)
	mux := handler.Routes()
	mux.Handle("/link", endpoint)

	srv := &http.Server{Addr: c.ListenAddr, Handler: mux}
	go func() {
		slog.Info("companion listening", "addr", c.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listener failed", "err", err)
			cancel()
		}
	}()

	var debugSrv *http.Server
	if c.DebugAddr != "" {
		debugMux := http.NewServeMux()
		debugMux.Handle("/metrics", promhttp.Handler())
		debugMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		debugSrv = &http.Server{Addr: c.DebugAddr, Handler: debugMux}
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("debug listener failed", "err", err)
			}
		}()
	}

	go trackWearableLink(ctx, endpoint)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "err", err)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	slog.Info("companion stopped")
}

// trackWearableLink mirrors link liveness into the connected gauge.
func trackWearableLink(ctx context.Context, endpoint *transport.Endpoint) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if endpoint.Connected() {
				metrics.WearableConnected.Set(1)
			} else {
				metrics.WearableConnected.Set(0)
			}
		}
	}
}
