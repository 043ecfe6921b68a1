package collaboration

import (
	"errors"
	"sync"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyJoined     = errors.New("connection already joined")
	ErrConnectionClosed  = errors.New("connection closed")
)

// ConnState is the protocol state of one transport connection.
type ConnState int

const (
	StateUnjoined ConnState = iota
	// StateJoining covers the time a join spends waiting on authorization.
	StateJoining
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Binding ties a joined connection to its document and edit permission.
// CanEdit is fixed for the life of the connection.
type Binding struct {
	DocumentID   string
	ConnectionID string
	UserID       string
	UserName     string
	CanEdit      bool
}

type connection struct {
	mu      sync.Mutex
	conn    Conn
	state   ConnState
	binding *Binding
}

// Registry tracks every live transport connection and, once joined, its
// Binding. A binding exists iff the connection is in StateJoined.
//
// Lock order is connection → SessionStore → DocumentSession.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Attach registers a freshly opened connection in StateUnjoined.
func (r *Registry) Attach(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = &connection{conn: conn, state: StateUnjoined}
}

func (r *Registry) lookup(connectionID string) (*connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connectionID]
	return c, ok
}

// BeginJoin moves an unjoined connection to StateJoining. A connection that
// is already joining or joined gets ErrAlreadyJoined, except a joined one for
// which stale reports true: its participant is gone from the session (the
// reaper removed it), so its binding is dropped and the join may proceed.
// stale runs under the connection lock.
func (r *Registry) BeginJoin(connectionID string, stale func(Binding) bool) error {
	c, ok := r.lookup(connectionID)
	if !ok {
		return ErrUnknownConnection
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUnjoined:
		c.state = StateJoining
		return nil
	case StateJoined:
		if stale != nil && c.binding != nil && stale(*c.binding) {
			c.binding = nil
			c.state = StateJoining
			return nil
		}
		return ErrAlreadyJoined
	case StateJoining:
		return ErrAlreadyJoined
	default:
		return ErrConnectionClosed
	}
}

// CompleteJoin runs commit and stores b, moving the connection to
// StateJoined. If the connection closed while authorization was in flight,
// commit is not run and ErrConnectionClosed is returned.
func (r *Registry) CompleteJoin(b Binding, commit func()) error {
	c, ok := r.lookup(b.ConnectionID)
	if !ok {
		return ErrConnectionClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateJoining {
		return ErrConnectionClosed
	}

	if commit != nil {
		commit()
	}
	c.binding = &b
	c.state = StateJoined
	return nil
}

// Reject marks a connection whose join was refused as closed.
func (r *Registry) Reject(connectionID string) {
	c, ok := r.lookup(connectionID)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	c.binding = nil
}

// Binding returns the binding of a joined connection.
func (r *Registry) Binding(connectionID string) (Binding, bool) {
	c, ok := r.lookup(connectionID)
	if !ok {
		return Binding{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return Binding{}, false
	}
	return *c.binding, true
}

// State returns the protocol state of a connection. Unknown connections
// report StateClosed.
func (r *Registry) State(connectionID string) ConnState {
	c, ok := r.lookup(connectionID)
	if !ok {
		return StateClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Detach forgets a connection. It returns the binding the connection held,
// if any, and whether the connection was known at all. Calling it again for
// the same connection is a no-op.
func (r *Registry) Detach(connectionID string) (*Binding, bool) {
	r.mu.Lock()
	c, ok := r.conns[connectionID]
	if ok {
		delete(r.conns, connectionID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.binding
	c.binding = nil
	c.state = StateClosed
	return b, true
}

// Conns returns every attached connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c.conn)
	}
	return conns
}

// Len returns the number of attached connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
