package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// ErrUnknownSession is returned for appends to sessions this server never
// opened. The client treats it as definitive and discards the batch.
var ErrUnknownSession = errors.New("store: unknown session")

// Session is one monitoring session's accumulated data.
type Session struct {
	ID        int64
	PatientID string
	StartedAt time.Time
	StoppedAt time.Time // zero while active
	samples   []wire.Sample
	seen      map[int64]struct{} // sample timestamps already accepted
}

// Info is a summary view of a session.
type Info struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patientId"`
	StartedAt time.Time `json:"startedAt"`
	StoppedAt time.Time `json:"stoppedAt"`
	Active    bool      `json:"active"`
	Samples   int       `json:"samples"`
}

// BatteryStatus is a patient's last reported wearable battery level.
type BatteryStatus struct {
	Level     int
	UpdatedAt time.Time
}

// Store is the thread-safe in-memory session registry. One session per
// patient is active at a time; stopped sessions stay queryable until the
// retention eviction loop removes them.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	sessions  map[int64]*Session
	active    map[string]int64 // patientID -> active session id
	battery   map[string]BatteryStatus
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store keeping stopped sessions for retention.
func New(retention time.Duration) *Store {
	return &Store{
		sessions:  make(map[int64]*Session),
		active:    make(map[string]int64),
		battery:   make(map[string]BatteryStatus),
		retention: retention,
		now:       time.Now,
	}
}

// StartSession opens a new session for the patient. A previous active
// session for the same patient is stopped first; the wearable can only
// stream into one session.
func (s *Store) StartSession(patientID string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.active[patientID]; ok {
		s.sessions[prev].StoppedAt = s.now()
		slog.Info("store: superseded active session", "patient_id", patientID, "session_id", prev)
	}

	s.nextID++
	sess := &Session{
		ID:        s.nextID,
		PatientID: patientID,
		StartedAt: s.now(),
		seen:      make(map[int64]struct{}),
	}
	s.sessions[sess.ID] = sess
	s.active[patientID] = sess.ID
	return infoLocked(sess)
}

// StopSession closes the session. Closing an already stopped session is a
// no-op; closing an unknown one reports ErrUnknownSession.
func (s *Store) StopSession(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if !sess.StoppedAt.IsZero() {
		return nil
	}
	sess.StoppedAt = s.now()
	if s.active[sess.PatientID] == sessionID {
		delete(s.active, sess.PatientID)
	}
	return nil
}

// Resume re-binds the patient's active pointer to a session that survived a
// client outage. Idempotent: resuming the already active session is a no-op.
// A stopped or unknown session cannot be resumed.
func (s *Store) Resume(patientID string, sessionID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.PatientID != patientID || !sess.StoppedAt.IsZero() {
		return false
	}
	s.active[patientID] = sessionID
	return true
}

// Append adds samples to the session, skipping timestamps it has already
// accepted. Late appends to a stopped session are allowed: retried uploads
// may arrive after the session ended and must not be lost.
func (s *Store) Append(sessionID int64, samples []wire.Sample) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrUnknownSession
	}

	added := 0
	for _, sample := range samples {
		if _, dup := sess.seen[sample.Timestamp]; dup {
			continue
		}
		sess.seen[sample.Timestamp] = struct{}{}
		sess.samples = append(sess.samples, sample)
		added++
	}
	return added, nil
}

// ActiveSession returns the patient's current session id.
func (s *Store) ActiveSession(patientID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[patientID]
	return id, ok
}

// Session returns the summary for one session.
func (s *Store) Session(sessionID int64) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return infoLocked(sess), true
}

// Samples returns a copy of the session's accepted samples in arrival order.
func (s *Store) Samples(sessionID int64) ([]wire.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	out := make([]wire.Sample, len(sess.samples))
	copy(out, sess.samples)
	return out, true
}

// Sessions returns summaries for every session currently held.
func (s *Store) Sessions() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, infoLocked(sess))
	}
	return out
}

// SetBattery records the patient's last reported battery level.
func (s *Store) SetBattery(patientID string, level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battery[patientID] = BatteryStatus{Level: level, UpdatedAt: s.now()}
}

// Battery returns the patient's last reported battery level.
func (s *Store) Battery(patientID string) (BatteryStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.battery[patientID]
	return b, ok
}

// Evict removes stopped sessions older than now minus the retention window.
// It returns the number of sessions removed. Active sessions never expire.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	removed := 0
	for id, sess := range s.sessions {
		if sess.StoppedAt.IsZero() || sess.StoppedAt.After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// Run starts the background retention eviction loop. It ticks at half the
// retention interval (minimum 1 minute) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired sessions", "count", n)
			}
		}
	}
}

func infoLocked(sess *Session) Info {
	return Info{
		ID:        sess.ID,
		PatientID: sess.PatientID,
		StartedAt: sess.StartedAt,
		StoppedAt: sess.StoppedAt,
		Active:    sess.StoppedAt.IsZero(),
		Samples:   len(sess.samples),
	}
}
