package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// maxEventSize bounds inbound event frames. Events carry control
	// metadata only; sample data rides the REST surface.
	maxEventSize = 1 << 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages the duplex event channel: companion devices and dashboards
// connect here. Clients that register a patient receive that patient's
// start/stop commands; every client receives the periodic sessions snapshot.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu        sync.RWMutex
	clients   map[*client]struct{}
	byPatient map[string]map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	patientID string // set after register_patient; guarded by hub.mu
}

// New creates a Hub reading from st and broadcasting the sessions snapshot
// every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:     st,
		interval:  interval,
		clients:   make(map[*client]struct{}),
		byPatient: make(map[string]map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Blocks until ctx is cancelled, then
// closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	h.readPump(c) // blocks until connection closes
}

// SendToPatient delivers an event to every client registered for the
// patient. Returns the number of clients reached.
func (h *Hub) SendToPatient(patientID string, ev wire.Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("ws: encode event failed", "event", ev.Name, "err", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.byPatient[patientID]))
	for c := range h.byPatient[patientID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		select {
		case c.send <- data:
			sent++
		default:
			h.unregister(c)
		}
	}
	return sent
}

// Broadcast delivers an event to every connected client. Returns the number
// of clients reached.
func (h *Hub) Broadcast(ev wire.Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("ws: encode event failed", "event", ev.Name, "err", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		select {
		case c.send <- data:
			sent++
		default:
			h.unregister(c)
		}
	}
	return sent
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	metrics.SocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.SocketClients.Set(float64(len(h.clients)))
		if set := h.byPatient[c.patientID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byPatient, c.patientID)
			}
		}
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) bindPatient(c *client, patientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if set := h.byPatient[c.patientID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byPatient, c.patientID)
		}
	}
	c.patientID = patientID
	if h.byPatient[patientID] == nil {
		h.byPatient[patientID] = make(map[*client]struct{})
	}
	h.byPatient[patientID][c] = struct{}{}
}

func (h *Hub) patientOf(c *client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.patientID
}

func (h *Hub) broadcast() {
	msg, err := wire.NewEvent("sessions_snapshot", map[string]any{
		"sessions": h.store.Sessions(),
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Client's outgoing buffer is full — disconnect it.
			h.unregister(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.byPatient = make(map[string]map[*client]struct{})
	metrics.SocketClients.Set(0)
}

// readPump reads inbound events from the client and dispatches them.
// Blocks until the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var ev wire.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(c, ev)
	}
}

func (h *Hub) dispatch(c *client, ev wire.Event) {
	switch ev.Name {
	case wire.EventRegisterPatient:
		var reg wire.RegisterPatient
		if err := ev.Decode(&reg); err != nil || reg.PatientID == "" {
			slog.Warn("ws: bad register_patient", "err", err)
			return
		}
		h.bindPatient(c, reg.PatientID)
		slog.Info("ws: client registered", "patient_id", reg.PatientID)

	case wire.EventRegisterDevice:
		var reg wire.RegisterDevice
		if err := ev.Decode(&reg); err != nil {
			slog.Warn("ws: bad register_device", "err", err)
			return
		}
		if reg.PatientID != "" {
			h.bindPatient(c, reg.PatientID)
		}
		slog.Info("ws: device registered", "device_id", reg.DeviceID, "patient_id", reg.PatientID)

	case wire.EventSessionStoppedByClient:
		var stop wire.SessionStopped
		if err := ev.Decode(&stop); err != nil {
			slog.Warn("ws: bad session_stopped_by_client", "err", err)
			return
		}
		if err := h.store.StopSession(stop.SessionID); err != nil {
			slog.Warn("ws: client stop for unknown session", "session_id", stop.SessionID)
			return
		}
		slog.Info("ws: session stopped by client", "session_id", stop.SessionID, "patient_id", stop.PatientID)

	case wire.EventWatchStatusUpdate:
		var status wire.WatchStatus
		if err := ev.Decode(&status); err != nil {
			slog.Warn("ws: bad watch_status_update", "err", err)
			return
		}
		h.store.SetBattery(status.PatientID, status.BatteryLevel)

	case wire.EventResumeActiveSession:
		var resume wire.ResumeActiveSession
		if err := ev.Decode(&resume); err != nil {
			slog.Warn("ws: bad resume_active_session", "err", err)
			return
		}
		patientID := h.patientOf(c)
		if patientID == "" {
			slog.Warn("ws: resume before register_patient", "session_id", resume.SessionID)
			return
		}
		if h.store.Resume(patientID, resume.SessionID) {
			slog.Info("ws: session resumed", "patient_id", patientID, "session_id", resume.SessionID)
		} else {
			slog.Warn("ws: resume rejected", "patient_id", patientID, "session_id", resume.SessionID)
		}

	default:
		slog.Debug("ws: ignoring unknown event", "event", ev.Name)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
