package collaboration

import (
	"context"
	"sync"
	"time"

	"docsync/internal/logging"
	"docsync/internal/metrics"
	"docsync/internal/models"
	"docsync/internal/services"
)

const (
	defaultReaperInterval    = 60 * time.Second
	defaultInactivityTimeout = 5 * time.Minute
)

/*
LEARNING: LOCKING WITHOUT A CENTRAL LOOP

Three kinds of lock guard the shared state:

1. Registry: one mutex per connection (state and binding)
2. SessionStore: the map of document id to session
3. DocumentSession: one mutex per session (content and participants)

They are always taken in that order: connection, then store, then
session. CompleteJoin holds the connection lock while the participant is
inserted, so a Disconnect racing with a join waits and then sees the
binding it has to clean up. Nothing ever reaches back for a connection
lock while holding a store or session lock, which is what keeps the three
deadlock free.

Broadcasts are queued while the session lock is held. Two edits to the
same document therefore reach every peer in the order they were applied.
Queueing never blocks (see Router), so holding the lock is cheap.
*/

// AccessResolver is what the manager needs from authorization.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, documentID, userID string) (services.Access, error)
}

// Options tunes a SessionManager. Zero values select the defaults.
type Options struct {
	ReaperInterval    time.Duration
	InactivityTimeout time.Duration
	Metrics           *metrics.Metrics
	Logger            logging.Logger

	// Now and PickColor are replaced in tests.
	Now       func() time.Time
	PickColor func() string
}

// SessionManager coordinates the collaboration layer: it owns the connection
// registry and session store, dispatches protocol messages, and runs the
// liveness reaper.
//
// There is no central event loop. Each connection's messages are handled on
// that connection's read goroutine; shared state is protected by the
// registry, store and per-session locks.
type SessionManager struct {
	registry *Registry
	sessions *SessionStore
	router   *Router
	resolver AccessResolver

	metrics   *metrics.Metrics
	logger    logging.Logger
	now       func() time.Time
	pickColor func() string

	reaperInterval    time.Duration
	inactivityTimeout time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSessionManager creates a new session manager
func NewSessionManager(resolver AccessResolver, opts Options) *SessionManager {
	if opts.ReaperInterval <= 0 {
		opts.ReaperInterval = defaultReaperInterval
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = defaultInactivityTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("collaboration")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PickColor == nil {
		opts.PickColor = randomColor
	}

	return &SessionManager{
		registry:          NewRegistry(),
		sessions:          NewSessionStore(),
		router:            NewRouter(opts.Metrics, opts.Logger),
		resolver:          resolver,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		now:               opts.Now,
		pickColor:         opts.PickColor,
		reaperInterval:    opts.ReaperInterval,
		inactivityTimeout: opts.InactivityTimeout,
		done:              make(chan struct{}),
	}
}

// Start launches the liveness reaper.
func (m *SessionManager) Start() {
	m.startOnce.Do(func() {
		m.logger.Info("🔄 Starting collaboration session manager...")

		m.wg.Add(1)
		go m.reapLoop()

		m.logger.Infof("✓ Session manager started (reap every %s, inactivity timeout %s)",
			m.reaperInterval, m.inactivityTimeout)
	})
}

// Shutdown stops the reaper and closes every open connection. Each
// connection's read loop then runs its own teardown.
func (m *SessionManager) Shutdown() {
	m.stopOnce.Do(func() {
		m.logger.Info("🛑 Shutting down session manager...")

		// Learning: stop the reaper before closing connections so it never
		// works on a session that teardown is emptying at the same time
		close(m.done)
		m.wg.Wait()

		conns := m.registry.Conns()
		for _, conn := range conns {
			conn.Close()
		}

		m.logger.Infof("✓ Session manager shutdown complete (%d connections closed)", len(conns))
	})
}

// Connect registers a newly opened transport connection.
func (m *SessionManager) Connect(conn Conn) {
	m.registry.Attach(conn)
	m.metrics.ConnectionOpened()
	m.logger.Debugf("Connection %s opened", conn.ID())
}

// Disconnect tears down a connection: it drops the binding, removes the
// participant, tells the remaining participants and deletes the session when
// it becomes empty. Safe to call more than once.
func (m *SessionManager) Disconnect(connectionID string) {
	binding, known := m.registry.Detach(connectionID)
	if !known {
		return
	}
	m.metrics.ConnectionClosed()

	if binding == nil {
		m.logger.Debugf("Connection %s closed before joining", connectionID)
		return
	}

	m.sessions.Leave(binding.DocumentID, connectionID, func(s *DocumentSession) {
		m.router.Broadcast(s, models.MessageTypePresence, &models.PresenceMessage{
			Type:       models.MessageTypePresence,
			DocumentID: s.DocumentID(),
			Users:      s.Roster(),
		}, "")
	})

	m.logger.Infof("  Connection %s (user %s) left document %s", connectionID, binding.UserID, binding.DocumentID)
	m.updateGauges()
}

// Sessions lists the live sessions.
func (m *SessionManager) Sessions() []SessionSummary {
	return m.sessions.Summaries()
}

// Presence returns the roster of a document's session.
func (m *SessionManager) Presence(documentID string) ([]models.UserPresence, bool) {
	_, roster, ok := m.sessions.Snapshot(documentID)
	return roster, ok
}

// SessionCount returns the number of live sessions.
func (m *SessionManager) SessionCount() int {
	return m.sessions.Len()
}

// ConnectionCount returns the number of open connections.
func (m *SessionManager) ConnectionCount() int {
	return m.registry.Len()
}

func (m *SessionManager) updateGauges() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetActiveSessions(m.sessions.Len())
	m.metrics.SetParticipants(m.sessions.ParticipantCount())
}
