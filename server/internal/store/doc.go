// Package store manages the server's in-memory session state. It provides
// a thread-safe session registry with per-session timestamp deduplication,
// per-patient battery status and retention-based eviction of finished
// sessions.
package store
