// Package api implements the HTTP REST API for the aggregation server.
//
// New(store, notifier) returns an http.Handler that serves:
//
//	POST /data                      — append a batch of samples to a session
//	POST /api/start_session        — open a session; the id is pushed to the
//	                                  patient's clients as start_monitoring
//	POST /api/stop_session         — close a session and push stop_monitoring
//	POST /api/set_active_patient   — broadcast the patient selection
//	GET  /api/sessions             — all sessions currently held
//	GET  /api/sessions/{id}        — one session summary; 404 if unknown
//	GET  /api/sessions/{id}/samples — the session's accepted samples
//	GET  /api/patients/{id}/battery — last reported wearable battery level
//
// All endpoints respond with Content-Type: application/json. A POST /data
// for a session this server never opened returns 404; clients treat that as
// definitive and discard the batch. JSON types are defined in types.go. No
// external HTTP framework is used.
package api
