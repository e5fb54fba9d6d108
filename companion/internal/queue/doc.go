// Package queue is the durable backlog of sample batches that failed
// direct delivery to the aggregation server. Rows are written once by the
// direct sender, read oldest-first and deleted by the retry uploader, and
// purged wholesale when their session is explicitly stopped. Rows are never
// updated in place.
package queue
