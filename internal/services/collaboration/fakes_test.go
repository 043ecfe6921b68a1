package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"docsync/internal/logging"
	"docsync/internal/models"
	"docsync/internal/services"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drain returns and forgets every message received so far.
func (c *fakeConn) drain() []map[string]any {
	c.mu.Lock()
	raw := c.msgs
	c.msgs = nil
	c.mu.Unlock()

	out := make([]map[string]any, 0, len(raw))
	for _, data := range raw {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func typesOf(msgs []map[string]any) []string {
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i], _ = m["type"].(string)
	}
	return types
}

func userIDs(t *testing.T, msg map[string]any) []string {
	t.Helper()
	users, ok := msg["users"].([]any)
	require.True(t, ok, "message has no users: %v", msg)

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i], _ = u.(map[string]any)["userId"].(string)
	}
	return ids
}

// fakeResolver grants access from a static table. Documents not in docs do
// not exist.
type fakeResolver struct {
	mu     sync.Mutex
	docs   map[string]fakeDoc
	err    error
	calls  int
	block  chan struct{}
	called chan struct{}
}

type fakeDoc struct {
	owner   string
	content string
	shares  map[string]models.Permission
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		docs: map[string]fakeDoc{
			"doc1": {
				owner:   "alice",
				content: "<p>hi</p>",
				shares: map[string]models.Permission{
					"bob":   models.PermissionView,
					"carol": models.PermissionEdit,
				},
			},
			"doc2": {owner: "alice", content: "second"},
		},
	}
}

func (r *fakeResolver) ResolveAccess(ctx context.Context, documentID, userID string) (services.Access, error) {
	r.mu.Lock()
	r.calls++
	block, called := r.block, r.called
	r.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return services.Access{}, ctx.Err()
		}
	}

	if r.err != nil {
		return services.Access{}, r.err
	}
	doc, ok := r.docs[documentID]
	if !ok {
		return services.Access{}, nil
	}

	access := services.Access{Exists: true, Content: doc.content}
	if doc.owner == userID {
		access.IsOwner, access.CanView, access.CanEdit = true, true, true
		return access, nil
	}
	if perm, ok := doc.shares[userID]; ok {
		access.Permission = perm
		access.CanView = perm.CanView()
		access.CanEdit = perm.CanEdit()
	}
	return access, nil
}

var errStoreDown = errors.New("store down")

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(resolver AccessResolver, clock *fakeClock) *SessionManager {
	return NewSessionManager(resolver, Options{
		Logger:    logging.Nop(),
		Now:       clock.Now,
		PickColor: func() string { return "#E57373" },
	})
}

func send(t *testing.T, m *SessionManager, conn Conn, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	m.HandleMessage(context.Background(), conn, data)
}

func join(t *testing.T, m *SessionManager, conn Conn, documentID, userID, userName string) {
	t.Helper()
	send(t, m, conn, map[string]any{
		"type":       "join",
		"documentId": documentID,
		"userId":     userID,
		"userName":   userName,
	})
}

func connectAndJoin(t *testing.T, m *SessionManager, id, documentID, userID, userName string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id)
	m.Connect(conn)
	join(t, m, conn, documentID, userID, userName)
	return conn
}
