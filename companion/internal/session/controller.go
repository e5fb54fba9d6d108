// Package session owns the companion's monitoring session state machine.
//
// A session moves Idle -> Requested -> Active -> Idle. Requested means the
// start call went out and the companion is waiting for the server to assign
// a session id over the duplex channel; sensor batches arriving in that
// window are buffered rather than dropped. Stopping a session purges its
// pending backlog, so nothing from a finished session is uploaded later.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// State is the session lifecycle phase.
type State int

const (
	Idle State = iota
	Requested
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

var (
	ErrNoPatient     = errors.New("session: no patient selected")
	ErrAlreadyActive = errors.New("session: session already in progress")
	ErrNotActive     = errors.New("session: no session in progress")
)

// Emitter sends events over the duplex channel to the server.
type Emitter interface {
	Emit(name string, data any) error
}

// Starter requests a new session from the server's REST surface.
type Starter interface {
	StartSession(ctx context.Context, patientID string) error
}

// WearableSender delivers control commands to the connected wearable.
type WearableSender interface {
	Send(path string, payload []byte) error
}

// Purger removes a finished session's backlog from the durable queue.
type Purger interface {
	DeleteSession(ctx context.Context, sessionID int64) (int64, error)
}

// Pipeline is the delivery side the controller drives through transitions.
type Pipeline interface {
	// Begin opens the buffering window for a requested session.
	Begin(patientID string)
	// Activate binds the server-assigned id and releases buffered batches.
	Activate(sessionID int64)
	// Reset drops buffered batches and halts retry work.
	Reset()
}

// Display is the live chart view, reset when a new session begins so traces
// from the previous session never bleed into the new one.
type Display interface {
	Clear()
}

// Controller serializes all session transitions behind one mutex. Callbacks
// from the duplex reader, the wearable link, and HTTP handlers all funnel
// through here.
type Controller struct {
	emit     Emitter
	rest     Starter
	wearable WearableSender
	queue    Purger
	pipeline Pipeline
	display  Display

	mu          sync.Mutex
	state       State
	sessionID   int64
	patientID   string
	patientName string
	deviceID    string
	battery     int
}

func NewController(emit Emitter, rest Starter, wearable WearableSender, queue Purger, pipeline Pipeline, display Display) *Controller {
	return &Controller{
		emit:     emit,
		rest:     rest,
		wearable: wearable,
		queue:    queue,
		pipeline: pipeline,
		display:  display,
		battery:  -1,
	}
}

// Snapshot is a point-in-time view of the session for status reporting.
type Snapshot struct {
	State       State  `json:"state"`
	SessionID   int64  `json:"sessionId,omitempty"`
	PatientID   string `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	Battery     int    `json:"batteryLevel"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:       c.state,
		SessionID:   c.sessionID,
		PatientID:   c.patientID,
		PatientName: c.patientName,
		Battery:     c.battery,
	}
}

// SetPatient selects the monitored patient. Rejected mid-session; the
// backlog is keyed by session and must not change owner underneath it.
func (c *Controller) SetPatient(id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrAlreadyActive
	}
	c.patientID = id
	c.patientName = name
	slog.Info("session: active patient set", "patient_id", id, "name", name)
	return nil
}

// RequestStart asks the server to open a session and tells the wearable to
// begin streaming. The session id arrives later over the duplex channel.
func (c *Controller) RequestStart(ctx context.Context) error {
	c.mu.Lock()
	if c.patientID == "" {
		c.mu.Unlock()
		return ErrNoPatient
	}
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.state = Requested
	patientID := c.patientID
	c.mu.Unlock()

	if err := c.rest.StartSession(ctx, patientID); err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		return err
	}

	c.display.Clear()
	c.pipeline.Begin(patientID)
	if err := c.wearable.Send(wire.ControlPath, []byte(wire.CommandStart)); err != nil {
		slog.Warn("session: start command not queued for wearable", "err", err)
	}
	slog.Info("session: start requested", "patient_id", patientID)
	return nil
}

// Activate binds the server-assigned session id. Duplicate activations with
// the same id are ignored so replayed start events stay harmless.
func (c *Controller) Activate(sessionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Requested:
		c.state = Active
		c.sessionID = sessionID
		c.pipeline.Activate(sessionID)
		slog.Info("session: active", "session_id", sessionID)
	case Active:
		if c.sessionID != sessionID {
			slog.Warn("session: ignoring start for different session",
				"current", c.sessionID, "received", sessionID)
		}
	default:
		slog.Warn("session: ignoring start while idle", "session_id", sessionID)
	}
}

// Stop ends the session at the user's request: the wearable is told to stop,
// the server is notified, and the session's queued backlog is discarded.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stop(ctx, true)
}

// StopFromServer ends the session on the server's command. The server
// already closed the session, so no stop notification goes back.
func (c *Controller) StopFromServer(ctx context.Context) error {
	return c.stop(ctx, false)
}

func (c *Controller) stop(ctx context.Context, notifyServer bool) error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return ErrNotActive
	}
	sessionID := c.sessionID
	patientID := c.patientID
	wasActive := c.state == Active
	c.state = Idle
	c.sessionID = 0
	c.mu.Unlock()

	if err := c.wearable.Send(wire.ControlPath, []byte(wire.CommandStop)); err != nil {
		slog.Warn("session: stop command not queued for wearable", "err", err)
	}

	c.pipeline.Reset()

	if wasActive {
		if notifyServer {
			err := c.emit.Emit(wire.EventSessionStoppedByClient, wire.SessionStopped{
				PatientID: patientID,
				SessionID: sessionID,
			})
			if err != nil {
				slog.Warn("session: stop notification not sent", "err", err)
			}
		}
		purged, err := c.queue.DeleteSession(ctx, sessionID)
		if err != nil {
			slog.Error("session: backlog purge failed", "session_id", sessionID, "err", err)
		} else if purged > 0 {
			slog.Info("session: purged stale backlog", "session_id", sessionID, "batches", purged)
		}
	}

	slog.Info("session: stopped", "session_id", sessionID, "by_server", !notifyServer)
	return nil
}

// SetBattery records the wearable's battery level and forwards it to the
// server as a status update.
func (c *Controller) SetBattery(level int) {
	c.mu.Lock()
	c.battery = level
	patientID := c.patientID
	c.mu.Unlock()

	if patientID == "" {
		return
	}
	if err := c.emit.Emit(wire.EventWatchStatusUpdate, wire.WatchStatus{
		PatientID:    patientID,
		BatteryLevel: level,
	}); err != nil {
		slog.Debug("session: battery update not sent", "err", err)
	}
}

// SetDeviceID records the wearable's announced identity and registers the
// device with the server. Repeated announcements with the same id are quiet.
func (c *Controller) SetDeviceID(id string) {
	c.mu.Lock()
	if id == "" || id == c.deviceID {
		c.mu.Unlock()
		return
	}
	c.deviceID = id
	patientID := c.patientID
	c.mu.Unlock()

	if err := c.emit.Emit(wire.EventRegisterDevice, wire.RegisterDevice{
		DeviceID:  id,
		PatientID: patientID,
	}); err != nil {
		slog.Warn("session: device registration not sent", "device_id", id, "err", err)
	}
	slog.Info("session: wearable identified", "device_id", id)
}

// HandleDuplexConnect re-registers the companion after every server
// (re)connect and, when a session survived the outage, replays the resume
// handshake so the server rebinds its side.
func (c *Controller) HandleDuplexConnect() {
	c.mu.Lock()
	patientID := c.patientID
	patientName := c.patientName
	deviceID := c.deviceID
	battery := c.battery
	active := c.state == Active
	sessionID := c.sessionID
	c.mu.Unlock()

	if deviceID != "" {
		c.emit.Emit(wire.EventRegisterDevice, wire.RegisterDevice{ //nolint:errcheck
			DeviceID:  deviceID,
			PatientID: patientID,
		})
	}
	if patientID == "" {
		return
	}

	if err := c.emit.Emit(wire.EventRegisterPatient, wire.RegisterPatient{PatientID: patientID}); err != nil {
		slog.Warn("session: register not sent", "err", err)
	}
	if battery >= 0 {
		c.emit.Emit(wire.EventWatchStatusUpdate, wire.WatchStatus{ //nolint:errcheck
			PatientID:    patientID,
			BatteryLevel: battery,
		})
	}
	if active {
		err := c.emit.Emit(wire.EventResumeActiveSession, wire.ResumeActiveSession{
			PatientName: patientName,
			SessionID:   sessionID,
		})
		if err != nil {
			slog.Warn("session: resume handshake not sent", "err", err)
		} else {
			slog.Info("session: resume handshake sent", "session_id", sessionID)
		}
	}
}
