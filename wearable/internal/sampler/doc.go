// Package sampler produces accelerometer samples and feeds them into a
// Sink (the batcher). Three source strategies are provided:
//
//   - Continuous: one sample per tick, pushed as it is read.
//   - DeviceBatched: readings are buffered driver-side and delivered in
//     device batches at a maximum report latency, mirroring hardware-assisted
//     sensor batching (fewer wake-ups).
//   - Replay: CSV playback of a recorded session, with timestamps
//     normalized to the current wall clock.
//
// All strategies feed the same Sink contract; the batcher downstream does
// not care which one is active.
package sampler
