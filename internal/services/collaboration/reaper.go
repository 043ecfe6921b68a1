package collaboration

import "time"

/*
LEARNING: REAPER VERSUS TEARDOWN

Two paths remove a participant, and they do different amounts of work:

  Disconnect (socket closed or "leave")
    - forgets the connection and its binding
    - removes the participant and broadcasts presence

  ReapInactive (no message for the inactivity timeout)
    - removes the participant only
    - no presence broadcast, the socket stays open, the binding stays

The reaper exists for clients that vanished without the socket noticing.
A client that was merely quiet can come back: its next "join" finds the
binding pointing at a session it is no longer part of, and is let back in
with a fresh sync. When the socket finally closes, Disconnect runs as
usual and simply finds nothing left to remove.
*/

// reapLoop periodically prunes participants that stopped sending messages.
func (m *SessionManager) reapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.ReapInactive()
		}
	}
}

// ReapInactive removes every participant whose last message is older than the
// inactivity timeout and deletes sessions left empty. Unlike Disconnect it
// sends no presence update and leaves the connection and its binding alone;
// it only keeps abandoned connections from holding sessions open.
func (m *SessionManager) ReapInactive() (reaped int, closed int) {
	cutoff := m.now().Add(-m.inactivityTimeout)

	reaped, closed = m.sessions.Reap(cutoff)
	if reaped == 0 {
		return 0, 0
	}

	m.metrics.ParticipantsReaped(reaped)
	m.updateGauges()
	m.logger.Infof("  Reaped %d inactive participants, closed %d sessions", reaped, closed)

	return reaped, closed
}
