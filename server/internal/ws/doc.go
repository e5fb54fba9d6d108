// Package ws implements the WebSocket event channel between the server and
// its clients (companions and dashboards).
//
// Hub manages connected clients and routes events to them. Companions bind
// themselves to a patient with register_patient or register_device; the hub
// then targets that patient's connections with SendToPatient. New connections
// for the same patient supersede older ones for targeted delivery.
//
// Hub.Run(ctx) blocks until ctx is cancelled, broadcasting a sessions_snapshot
// event to every client on a configurable interval, then closes all active
// connections. Hub.ServeHTTP upgrades an HTTP connection to WebSocket and
// starts the read/write pumps.
//
// Inbound events handled by the hub: register_patient, register_device,
// session_stopped_by_client, watch_status_update, resume_active_session.
//
// The upgrader accepts all origins. Apply origin restrictions at the reverse
// proxy level. The endpoint is mounted at /socket by the server.
package ws
