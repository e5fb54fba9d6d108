// Package wire defines the shared wire types used by the wearable, the
// companion and the aggregation server: accelerometer samples, the logical
// transport paths the wearable publishes on, the control commands sent back
// to it, the REST upload body, and the event envelope spoken on the duplex
// channel between companion and server.
//
// Payloads on the transport are opaque byte slices; this package owns the
// JSON codecs that give them meaning at each end.
package wire
