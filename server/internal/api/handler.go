package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/store"
)

// Notifier pushes events to connected clients. Implemented by the ws hub.
type Notifier interface {
	SendToPatient(patientID string, ev wire.Event) int
	Broadcast(ev wire.Event) int
}

// Handler is the HTTP handler for the data and session endpoints.
type Handler struct {
	store  *store.Store
	notify Notifier
	mux    *http.ServeMux
}

// New creates a Handler wired to the given store and notifier and registers
// all routes.
func New(st *store.Store, notify Notifier) http.Handler {
	h := &Handler{store: st, notify: notify, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /data", h.appendData)
	h.mux.HandleFunc("POST /api/start_session", h.startSession)
	h.mux.HandleFunc("POST /api/stop_session", h.stopSession)
	h.mux.HandleFunc("POST /api/set_active_patient", h.setActivePatient)
	h.mux.HandleFunc("GET /api/sessions", h.listSessions)
	h.mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	h.mux.HandleFunc("GET /api/sessions/{id}/samples", h.getSamples)
	h.mux.HandleFunc("GET /api/patients/{id}/battery", h.getBattery)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// appendData handles POST /data — a batch (possibly several merged retry
// batches) of samples for one session.
func (h *Handler) appendData(w http.ResponseWriter, r *http.Request) {
	var req wire.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.SessionID == 0 {
		jsonErr(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	added, err := h.store.Append(req.SessionID, req.Data)
	if errors.Is(err, store.ErrUnknownSession) {
		// Definitive: the client discards the batch instead of retrying.
		metrics.UploadsRejected.Inc()
		jsonErr(w, http.StatusNotFound, "unknown session")
		return
	}
	metrics.SamplesIngested.Add(float64(added))
	metrics.SamplesDuplicate.Add(float64(len(req.Data) - added))

	slog.Debug("api: batch accepted",
		"session_id", req.SessionID, "received", len(req.Data), "accepted", added)
	jsonResp(w, http.StatusOK, appendResponse{Accepted: added})
}

// startSession handles POST /api/start_session. The assigned session id is
// pushed to the patient's connected clients as a start_monitoring event.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PatientID == "" {
		jsonErr(w, http.StatusBadRequest, "patientId is required")
		return
	}

	info := h.store.StartSession(req.PatientID)
	metrics.SessionsStarted.Inc()

	ev, err := wire.NewEvent(wire.EventStartMonitoring, wire.StartMonitoring{SessionID: info.ID})
	if err == nil {
		reached := h.notify.SendToPatient(req.PatientID, ev)
		slog.Info("api: session started",
			"patient_id", req.PatientID, "session_id", info.ID, "clients", reached)
	}

	jsonResp(w, http.StatusCreated, startSessionResponse{SessionID: info.ID})
}

// stopSession handles POST /api/stop_session — the clinician-side stop. The
// patient's clients receive stop_monitoring so the wearable stops streaming.
func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == 0 {
		jsonErr(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	info, ok := h.store.Session(req.SessionID)
	if !ok {
		jsonErr(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := h.store.StopSession(req.SessionID); err != nil {
		jsonErr(w, http.StatusNotFound, "unknown session")
		return
	}

	if ev, err := wire.NewEvent(wire.EventStopMonitoring, nil); err == nil {
		h.notify.SendToPatient(info.PatientID, ev)
	}
	slog.Info("api: session stopped", "session_id", req.SessionID, "patient_id", info.PatientID)
	jsonResp(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// setActivePatient handles POST /api/set_active_patient — the clinician
// assigns which patient a companion should monitor. The selection is
// broadcast; companions not yet bound to a patient pick it up from there.
func (h *Handler) setActivePatient(w http.ResponseWriter, r *http.Request) {
	var req setActivePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		jsonErr(w, http.StatusBadRequest, "id is required")
		return
	}

	ev, err := wire.NewEvent(wire.EventSetActivePatient, wire.SetActivePatient{
		ID:   req.ID,
		Name: req.Name,
	})
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "encode event failed")
		return
	}
	reached := h.notify.Broadcast(ev)
	slog.Info("api: active patient set", "patient_id", req.ID, "clients", reached)
	jsonResp(w, http.StatusOK, map[string]int{"clients": reached})
}

// listSessions handles GET /api/sessions.
func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.store.Sessions())
}

// getSession handles GET /api/sessions/{id}.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		jsonErr(w, http.StatusBadRequest, "invalid session id")
		return
	}
	info, found := h.store.Session(id)
	if !found {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResp(w, http.StatusOK, info)
}

// getSamples handles GET /api/sessions/{id}/samples.
func (h *Handler) getSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		jsonErr(w, http.StatusBadRequest, "invalid session id")
		return
	}
	samples, found := h.store.Samples(id)
	if !found {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	if samples == nil {
		samples = []wire.Sample{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"samples": samples})
}

// getBattery handles GET /api/patients/{id}/battery.
func (h *Handler) getBattery(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	b, ok := h.store.Battery(patientID)
	if !ok {
		jsonErr(w, http.StatusNotFound, "no battery report for patient")
		return
	}
	jsonResp(w, http.StatusOK, batteryResponse{
		PatientID: patientID,
		Level:     b.Level,
		UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func sessionID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
