// Package api is the companion's local control surface: the start/stop
// buttons, patient selection, the live chart feed and a status view. It is
// meant for the device's own UI, not for remote access.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/receiver"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/session"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// Controller is the session side the handlers drive.
type Controller interface {
	RequestStart(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPatient(id, name string) error
	Snapshot() session.Snapshot
}

// ChartSource is the live sample window for the chart endpoint.
type ChartSource interface {
	Snapshot() []wire.Sample
}

// QueueCounter exposes the durable queue depth for the status view.
type QueueCounter interface {
	Count(ctx context.Context) (int, error)
}

// Handler serves the local control API.
type Handler struct {
	ctrl     Controller
	chart    ChartSource
	queue    QueueCounter
	recv     *receiver.Receiver
	wearable func() bool // wearable link liveness
	server   func() bool // duplex channel liveness
}

func NewHandler(ctrl Controller, chart ChartSource, queue QueueCounter, recv *receiver.Receiver, wearable, server func() bool) *Handler {
	return &Handler{
		ctrl:     ctrl,
		chart:    chart,
		queue:    queue,
		recv:     recv,
		wearable: wearable,
		server:   server,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", h.handleStart)
	mux.HandleFunc("POST /api/stop", h.handleStop)
	mux.HandleFunc("POST /api/patient", h.handleSetPatient)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/chart", h.handleChart)
	return mux
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.RequestStart(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
	case errors.Is(err, session.ErrNoPatient):
		httpError(w, http.StatusConflict, "no patient selected")
	case errors.Is(err, session.ErrAlreadyActive):
		httpError(w, http.StatusConflict, "session already in progress")
	default:
		slog.Error("api: start failed", "err", err)
		httpError(w, http.StatusBadGateway, "server did not accept the session")
	}
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.Stop(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	case errors.Is(err, session.ErrNotActive):
		httpError(w, http.StatusConflict, "no session in progress")
	default:
		slog.Error("api: stop failed", "err", err)
		httpError(w, http.StatusInternalServerError, "stop failed")
	}
}

type setPatientRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) handleSetPatient(w http.ResponseWriter, r *http.Request) {
	var req setPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		httpError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.ctrl.SetPatient(req.ID, req.Name); err != nil {
		httpError(w, http.StatusConflict, "cannot change patient mid-session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Session         session.Snapshot `json:"session"`
	Streaming       bool             `json:"streaming"`
	WearableLinked  bool             `json:"wearableLinked"`
	ServerConnected bool             `json:"serverConnected"`
	PendingBatches  int              `json:"pendingBatches"`
	PendingUnknown  bool             `json:"pendingUnknown,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Session:         h.ctrl.Snapshot(),
		Streaming:       h.recv.Streaming(),
		WearableLinked:  h.wearable(),
		ServerConnected: h.server(),
	}
	n, err := h.queue.Count(r.Context())
	if err != nil {
		resp.PendingUnknown = true
	} else {
		resp.PendingBatches = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleChart(w http.ResponseWriter, _ *http.Request) {
	samples := h.chart.Snapshot()
	if samples == nil {
		samples = []wire.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: write response failed", "err", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
