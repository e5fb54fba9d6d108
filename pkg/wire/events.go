package wire

import (
	"encoding/json"
	"fmt"
)

// Duplex channel event names. Client→server events are emitted by the
// companion; server→client events are pushed by the aggregation server.
const (
	// client → server
	EventRegisterPatient        = "register_patient"
	EventRegisterDevice         = "register_device"
	EventSessionStoppedByClient = "session_stopped_by_client"
	EventWatchStatusUpdate      = "watch_status_update"
	EventResumeActiveSession    = "resume_active_session"

	// server → client
	EventStartMonitoring  = "start_monitoring"
	EventStopMonitoring   = "stop_monitoring"
	EventSetActivePatient = "set_active_patient"
)

// Event is the JSON envelope for every duplex channel message.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event envelope.
func NewEvent(name string, data any) (Event, error) {
	if data == nil {
		return Event{Name: name}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", name, err)
	}
	return Event{Name: name, Data: raw}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Name, err)
	}
	return nil
}

// RegisterPatient identifies the companion's selected patient on connect.
type RegisterPatient struct {
	PatientID string `json:"patientId"`
}

// RegisterDevice identifies the companion device itself.
type RegisterDevice struct {
	DeviceID  string `json:"deviceId"`
	PatientID string `json:"patientId,omitempty"`
}

// SessionStopped tells the server the user stopped the session locally.
type SessionStopped struct {
	PatientID string `json:"patientId"`
	SessionID int64  `json:"sessionId"`
}

// WatchStatus carries the wearable's battery level to the server.
type WatchStatus struct {
	PatientID    string `json:"patientId"`
	BatteryLevel int    `json:"batteryLevel"`
}

// ResumeActiveSession reconciles server session state after a reconnect
// while a session is active. Idempotent on the server side.
type ResumeActiveSession struct {
	PatientName string `json:"patientName"`
	SessionID   int64  `json:"sessionId"`
}

// StartMonitoring is the server's start acknowledgment carrying the assigned
// session id. The field name is part of the historical wire contract.
type StartMonitoring struct {
	SessionID int64 `json:"sessao_id"`
}

// SetActivePatient tells the companion which patient it should monitor.
type SetActivePatient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
