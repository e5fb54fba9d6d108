package api

// startSessionRequest is the body of POST /api/start_session.
type startSessionRequest struct {
	PatientID string `json:"patientId"`
}

// startSessionResponse confirms the opened session. The id is also pushed
// over the event channel; the body is for callers that poll instead.
type startSessionResponse struct {
	SessionID int64 `json:"sessionId"`
}

// stopSessionRequest is the body of POST /api/stop_session.
type stopSessionRequest struct {
	SessionID int64 `json:"sessionId"`
}

// setActivePatientRequest is the body of POST /api/set_active_patient.
type setActivePatientRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// appendResponse reports how many samples POST /data actually accepted
// after deduplication.
type appendResponse struct {
	Accepted int `json:"accepted"`
}

// batteryResponse is the body of GET /api/patients/{id}/battery.
type batteryResponse struct {
	PatientID string `json:"patientId"`
	Level     int    `json:"level"`
	UpdatedAt string `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}
