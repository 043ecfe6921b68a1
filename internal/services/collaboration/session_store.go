package collaboration

import (
	"sort"
	"sync"
	"time"

	"docsync/internal/models"
)

// DocumentSession is the live state of one open document: the authoritative
// content snapshot and the connected participants.
//
// Methods on DocumentSession expect the session lock to be held; they are
// only reachable through SessionStore callbacks.
type DocumentSession struct {
	mu           sync.Mutex
	documentID   string
	content      string
	participants map[string]*Participant
}

func (s *DocumentSession) DocumentID() string {
	return s.documentID
}

func (s *DocumentSession) Content() string {
	return s.content
}

// SetContent replaces the snapshot wholesale.
func (s *DocumentSession) SetContent(content string) {
	s.content = content
}

func (s *DocumentSession) Participant(connectionID string) (*Participant, bool) {
	p, ok := s.participants[connectionID]
	return p, ok
}

func (s *DocumentSession) Roster() []models.UserPresence {
	return buildRoster(s.participants)
}

func (s *DocumentSession) Len() int {
	return len(s.participants)
}

// SessionSummary is a point-in-time view of a session for introspection.
type SessionSummary struct {
	DocumentID   string `json:"documentId"`
	Participants int    `json:"participants"`
}

// SessionStore holds one DocumentSession per document with at least one
// participant. A session is created on first join and removed as soon as its
// last participant goes away.
//
// Lock order is store → session. Any path that deletes a session holds both.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*DocumentSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*DocumentSession)}
}

// Join inserts (or overwrites) p in the session for documentID, creating the
// session from seed when absent. onJoined runs with the session locked.
func (st *SessionStore) Join(documentID, seed string, p *Participant, onJoined func(*DocumentSession)) {
	st.mu.Lock()
	s, ok := st.sessions[documentID]
	if !ok {
		s = &DocumentSession{
			documentID:   documentID,
			content:      seed,
			participants: make(map[string]*Participant),
		}
		st.sessions[documentID] = s
	}
	s.mu.Lock()
	st.mu.Unlock()
	defer s.mu.Unlock()

	s.participants[p.ConnectionID] = p
	if onJoined != nil {
		onJoined(s)
	}
}

// With runs fn with the session for documentID locked. It reports false when
// no session exists.
func (st *SessionStore) With(documentID string, fn func(*DocumentSession)) bool {
	st.mu.RLock()
	s, ok := st.sessions[documentID]
	if !ok {
		st.mu.RUnlock()
		return false
	}
	s.mu.Lock()
	st.mu.RUnlock()
	defer s.mu.Unlock()

	fn(s)
	return true
}

// Leave removes the participant for connectionID. When participants remain,
// onRemaining runs with the session locked; otherwise the session is deleted.
// It reports whether a participant was removed.
func (st *SessionStore) Leave(documentID, connectionID string, onRemaining func(*DocumentSession)) bool {
	st.mu.Lock()
	s, ok := st.sessions[documentID]
	if !ok {
		st.mu.Unlock()
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, removed := s.participants[connectionID]
	delete(s.participants, connectionID)

	if len(s.participants) == 0 {
		delete(st.sessions, documentID)
		st.mu.Unlock()
		return removed
	}
	st.mu.Unlock()

	if onRemaining != nil {
		onRemaining(s)
	}
	return removed
}

// Reap removes every participant whose LastActive is before cutoff and deletes
// sessions left empty. Nothing is broadcast and no connection is closed.
func (st *SessionStore) Reap(cutoff time.Time) (reaped int, closed int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for documentID, s := range st.sessions {
		s.mu.Lock()
		for connectionID, p := range s.participants {
			if p.LastActive.Before(cutoff) {
				delete(s.participants, connectionID)
				reaped++
			}
		}
		if len(s.participants) == 0 {
			delete(st.sessions, documentID)
			closed++
		}
		s.mu.Unlock()
	}

	return reaped, closed
}

// Has reports whether a session exists for documentID.
func (st *SessionStore) Has(documentID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.sessions[documentID]
	return ok
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ParticipantCount returns the number of participants across all sessions.
func (st *SessionStore) ParticipantCount() int {
	total := 0
	for _, summary := range st.Summaries() {
		total += summary.Participants
	}
	return total
}

// Summaries lists every session ordered by document id.
func (st *SessionStore) Summaries() []SessionSummary {
	st.mu.RLock()
	sessions := make([]*DocumentSession, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		n := len(s.participants)
		s.mu.Unlock()
		if n == 0 {
			continue
		}
		summaries = append(summaries, SessionSummary{DocumentID: s.documentID, Participants: n})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].DocumentID < summaries[j].DocumentID
	})
	return summaries
}

// Snapshot returns the content and roster of a session.
func (st *SessionStore) Snapshot(documentID string) (content string, roster []models.UserPresence, ok bool) {
	ok = st.With(documentID, func(s *DocumentSession) {
		content = s.content
		roster = s.Roster()
	})
	return content, roster, ok
}
