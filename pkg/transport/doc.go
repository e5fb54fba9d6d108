// Package transport abstracts the unreliable wearable↔companion link.
//
// Payloads are opaque bytes tagged with a logical path. Delivery is
// at-least-once while both ends are reachable: every frame carries a
// sequence number, the peer acknowledges it, and unacknowledged frames are
// resent after a reconnect. There is no ordering guarantee between distinct
// logical paths; consumers must tolerate reordering.
//
// Two implementations are provided: a WebSocket link (Client on the
// wearable, Endpoint on the companion) with truncated exponential backoff
// reconnection, and an in-process Pipe for tests and single-process
// deployments.
package transport
