package collaboration

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"docsync/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// HandlerOptions configures the websocket endpoint.
type HandlerOptions struct {
	AllowedOrigins  []string
	SendBufferSize  int
	MaxMessageBytes int64
}

// WebSocketHandler upgrades HTTP requests into collaboration connections.
// The document is chosen by the client's first join message, not the URL.
type WebSocketHandler struct {
	sessionManager *SessionManager
	upgrader       websocket.Upgrader
	opts           HandlerOptions
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessionManager *SessionManager, opts HandlerOptions) *WebSocketHandler {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 1 << 20
	}

	return &WebSocketHandler{
		sessionManager: sessionManager,
		opts:           opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// ServeHTTP handles one collaboration connection for its whole lifetime.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
	)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sessionManager.logger.Warnf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		span.End()
		return
	}

	client := NewClient(ws, h.sessionManager, h.opts.SendBufferSize, h.opts.MaxMessageBytes)
	span.SetAttributes(attribute.String("connection.id", client.ID()))
	span.End()

	h.sessionManager.Connect(client)
	h.sessionManager.logger.Infof("✓ WebSocket connection %s established from %s", client.ID(), r.RemoteAddr)

	// The request context ends with this handler; keep its values but let
	// in-flight authorization be cancelled only when the connection goes away.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	go func() {
		select {
		case <-client.closing:
			cancel()
		case <-connCtx.Done():
		}
	}()

	go client.WritePump()
	client.ReadPump(connCtx)
}

// originChecker allows every origin when the list is empty or contains "*".
// Requests without an Origin header (non-browser clients) are accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
