package collaboration

import (
	"encoding/json"

	"docsync/internal/logging"
	"docsync/internal/metrics"
	"docsync/internal/models"
)

// Conn is the outbound side of one transport connection.
type Conn interface {
	// ID returns the process-unique connection id.
	ID() string
	// Send queues msg without blocking. It returns false when the outbound
	// buffer is full or the connection is closing.
	Send(msg []byte) bool
	// Close flushes queued messages and closes the transport. It must not
	// block and may be called more than once.
	Close()
}

// Router delivers encoded protocol messages to connections.
type Router struct {
	metrics *metrics.Metrics
	logger  logging.Logger
}

func NewRouter(m *metrics.Metrics, logger logging.Logger) *Router {
	return &Router{metrics: m, logger: logger}
}

// SendTo delivers one message to a single connection.
func (r *Router) SendTo(conn Conn, msgType models.MessageType, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Errorf("Failed to encode %s message: %v", msgType, err)
		return false
	}

	if !r.deliver(conn, data) {
		return false
	}
	r.metrics.MessagesSent(string(msgType), 1)
	return true
}

// Broadcast delivers payload to every participant of s except the connection
// exceptID (pass "" to include everyone). It must be called with the session
// lock held, which keeps deliveries in the same order as session mutations.
// It returns the number of participants the message was queued for.
func (r *Router) Broadcast(s *DocumentSession, msgType models.MessageType, payload any, exceptID string) int {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Errorf("Failed to encode %s message: %v", msgType, err)
		return 0
	}

	delivered := 0
	for connectionID, p := range s.participants {
		if connectionID == exceptID || p.conn == nil {
			continue
		}
		if r.deliver(p.conn, data) {
			delivered++
		}
	}

	r.metrics.MessagesSent(string(msgType), delivered)
	return delivered
}

// deliver queues data on conn. A connection that cannot keep up is closed;
// its read loop then runs the normal teardown.
func (r *Router) deliver(conn Conn, data []byte) bool {
	if conn.Send(data) {
		return true
	}

	r.logger.Warnf("⚠️  Connection %s buffer full or closing, disconnecting", conn.ID())
	r.metrics.DeliveryDropped()
	conn.Close()
	return false
}
