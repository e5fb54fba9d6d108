// Package gateway talks to the remote aggregation server on the
// companion's behalf: batch uploads and session-start requests over REST,
// and the duplex event channel (registration, status updates, resume
// handshake, remote start/stop commands) over WebSocket.
//
// The REST client classifies every failure into the delivery error
// taxonomy: a 4xx response is a definitive rejection (retrying is futile),
// anything else that isn't a 2xx — network errors, timeouts, 5xx — means
// the server is temporarily unavailable and the batch should be retried.
package gateway
