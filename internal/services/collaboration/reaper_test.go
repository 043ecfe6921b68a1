package collaboration

import (
	"context"
	"testing"
	"time"

	"docsync/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapInactive(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(newFakeResolver(), clock)

	a := connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")
	clock.Advance(3 * time.Minute)
	b := connectAndJoin(t, m, "c2", "doc1", "bob", "Bob")
	solo := connectAndJoin(t, m, "c3", "doc2", "alice", "Alice")
	a.drain()
	b.drain()
	solo.drain()

	clock.Advance(3 * time.Minute)
	reaped, closed := m.ReapInactive()
	assert.Equal(t, 1, reaped)
	assert.Equal(t, 0, closed)

	roster, ok := m.Presence("doc1")
	require.True(t, ok)
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].UserID)

	clock.Advance(3 * time.Minute)
	reaped, closed = m.ReapInactive()
	assert.Equal(t, 2, reaped)
	assert.Equal(t, 2, closed)
	assert.Equal(t, 0, m.SessionCount())

	// No presence broadcast, no close, bindings untouched.
	for _, c := range []*fakeConn{a, b, solo} {
		assert.Empty(t, c.drain())
		assert.False(t, c.isClosed())
	}
	assert.Equal(t, StateJoined, m.registry.State("c1"))
	assert.Equal(t, 3, m.ConnectionCount())
}

func TestActivityDefersReaping(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(newFakeResolver(), clock)
	a := connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")

	clock.Advance(4 * time.Minute)
	send(t, m, a, map[string]any{"type": "cursor", "cursorPosition": map[string]int{"line": 0, "column": 0}})

	clock.Advance(4 * time.Minute)
	reaped, _ := m.ReapInactive()
	assert.Equal(t, 0, reaped)
	assert.True(t, m.sessions.Has("doc1"))
}

func TestAnyMessageDefersReaping(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(newFakeResolver(), clock)
	a := connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")
	b := connectAndJoin(t, m, "c2", "doc1", "bob", "Bob")

	clock.Advance(4 * time.Minute)
	m.HandleMessage(context.Background(), a, []byte(`{"type":"telepathy"}`))
	// Refused edits count as activity too.
	send(t, m, b, map[string]any{"type": "content", "content": "nope"})

	clock.Advance(4 * time.Minute)
	reaped, _ := m.ReapInactive()
	assert.Equal(t, 0, reaped)

	roster, ok := m.Presence("doc1")
	require.True(t, ok)
	assert.Len(t, roster, 2)
}

func TestRejoinAfterReap(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(newFakeResolver(), clock)

	a := connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")
	b := connectAndJoin(t, m, "c2", "doc1", "bob", "Bob")

	clock.Advance(4 * time.Minute)
	send(t, m, a, map[string]any{"type": "cursor", "cursorPosition": map[string]int{"line": 1, "column": 2}})
	clock.Advance(2 * time.Minute)
	a.drain()
	b.drain()

	reaped, _ := m.ReapInactive()
	require.Equal(t, 1, reaped)

	// Bob is out of the session: edits no longer reach him.
	send(t, m, a, map[string]any{"type": "content", "content": "<p>while away</p>"})
	assert.Empty(t, b.drain())

	join(t, m, b, "doc1", "bob", "Bob")

	msgs := b.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sync", msgs[0]["type"])
	assert.Equal(t, "<p>while away</p>", msgs[0]["content"])
	assert.Equal(t, false, msgs[0]["canEdit"])
	assert.ElementsMatch(t, []string{"alice", "bob"}, userIDs(t, msgs[0]))

	msgs = a.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "presence", msgs[0]["type"])
	assert.ElementsMatch(t, []string{"alice", "bob"}, userIDs(t, msgs[0]))

	send(t, m, a, map[string]any{"type": "content", "content": "<p>back</p>"})
	msgs = b.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "content", msgs[0]["type"])

	// Once present again, a second join is refused as usual.
	join(t, m, b, "doc1", "bob", "Bob")
	msgs = b.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0]["type"])
	assert.Equal(t, "already joined", msgs[0]["message"])
	assert.Equal(t, StateJoined, m.registry.State("c2"))
}

func TestTeardownAfterReap(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(newFakeResolver(), clock)

	a := connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")
	clock.Advance(6 * time.Minute)
	b := connectAndJoin(t, m, "c2", "doc1", "bob", "Bob")
	a.drain()
	b.drain()

	reaped, _ := m.ReapInactive()
	require.Equal(t, 1, reaped)

	// A reaped participant's content still lands in the live session.
	send(t, m, a, map[string]any{"type": "content", "content": "late edit"})
	content, _, _ := m.sessions.Snapshot("doc1")
	assert.Equal(t, "late edit", content)
	assert.Len(t, b.drain(), 1)

	m.Disconnect("c1")
	msgs := b.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "presence", msgs[0]["type"])
	assert.Equal(t, []string{"bob"}, userIDs(t, msgs[0]))
}

func TestReapLoopRuns(t *testing.T) {
	clock := newFakeClock()
	m := NewSessionManager(newFakeResolver(), Options{
		ReaperInterval:    10 * time.Millisecond,
		InactivityTimeout: time.Minute,
		Logger:            logging.Nop(),
		Now:               clock.Now,
	})
	connectAndJoin(t, m, "c1", "doc1", "alice", "Alice")

	m.Start()
	defer m.Shutdown()

	clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool {
		return m.SessionCount() == 0
	}, time.Second, 10*time.Millisecond)
}
