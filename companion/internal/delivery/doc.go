// Package delivery moves sensor batches from the companion to the server.
//
// The happy path is a direct POST per batch. When the server is
// unreachable the batch is written to the durable queue and a background
// uploader drains it once connectivity returns, oldest first, merging
// rows per session to keep the request count down. A batch therefore
// reaches the server at least once unless the server permanently rejects
// it or the local insert itself fails.
package delivery
