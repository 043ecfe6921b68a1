package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.SetActiveSessions(3)
	m.SetParticipants(7)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.MessageReceived("cursor")
	m.MessageReceived("cursor")
	m.MessagesSent("presence", 4)
	m.MessagesSent("presence", 0)
	m.JoinRejected("no_access")
	m.ParticipantsReaped(2)
	m.DeliveryDropped()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.participants))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesReceived.WithLabelValues("cursor")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.messagesSent.WithLabelValues("presence")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.joinRejections.WithLabelValues("no_access")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.reapedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.droppedDeliveries))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetActiveSessions(1)
		m.ConnectionOpened()
		m.MessageReceived("join")
		m.DeliveryDropped()
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.SetActiveSessions(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "docsync_collab_active_sessions 1"))
}
