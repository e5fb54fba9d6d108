// Package batcher accumulates accelerometer samples into fixed-size batches
// and hands each full batch to the transport as one logical send. The final
// partial batch is flushed on shutdown so no sample is dropped at a batch
// boundary.
package batcher
