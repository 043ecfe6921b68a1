package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"docsync/internal/models"
	"docsync/internal/services/collaboration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCollab struct {
	sessions []collaboration.SessionSummary
	presence map[string][]models.UserPresence
	conns    int
}

func (f *fakeCollab) Sessions() []collaboration.SessionSummary { return f.sessions }

func (f *fakeCollab) Presence(documentID string) ([]models.UserPresence, bool) {
	users, ok := f.presence[documentID]
	return users, ok
}

func (f *fakeCollab) SessionCount() int    { return len(f.sessions) }
func (f *fakeCollab) ConnectionCount() int { return f.conns }

func newTestRouter(collab CollaborationService, metrics http.Handler) http.Handler {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return SetupRoutes(NewHandler(collab, ws, metrics))
}

func TestRoutes(t *testing.T) {
	collab := &fakeCollab{
		sessions: []collaboration.SessionSummary{{DocumentID: "doc1", Participants: 2}},
		presence: map[string][]models.UserPresence{
			"doc1": {
				{UserID: "alice", UserName: "Alice", Color: "#E57373", CursorPosition: &models.CursorPosition{Line: 1, Column: 2}},
				{UserID: "bob", UserName: "Bob", Color: "#64B5F6"},
			},
		},
		conns: 3,
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("docsync_collab_active_sessions 1\n"))
	})
	router := newTestRouter(collab, metrics)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "health",
			method:     http.MethodGet,
			path:       "/api/health",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, float64(1), body["sessions"])
				assert.Equal(t, float64(3), body["connections"])
			},
		},
		{
			name:       "sessions",
			method:     http.MethodGet,
			path:       "/api/collaboration/sessions",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.JSONEq(t, `{"sessions":[{"documentId":"doc1","participants":2}],"count":1}`, rec.Body.String())
			},
		},
		{
			name:       "presence",
			method:     http.MethodGet,
			path:       "/api/documents/doc1/presence",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.JSONEq(t, `{"documentId":"doc1","users":[
					{"userId":"alice","userName":"Alice","color":"#E57373","cursorPosition":{"line":1,"column":2}},
					{"userId":"bob","userName":"Bob","color":"#64B5F6","cursorPosition":null}
				]}`, rec.Body.String())
			},
		},
		{
			name:       "presence without session",
			method:     http.MethodGet,
			path:       "/api/documents/doc9/presence",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "websocket endpoint",
			method:     http.MethodGet,
			path:       "/ws/collaborate",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "metrics",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, rec.Body.String(), "docsync_collab_active_sessions 1")
			},
		},
		{
			name:       "sessions are read-only",
			method:     http.MethodPost,
			path:       "/api/collaboration/sessions",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "preflight",
			method:     http.MethodOptions,
			path:       "/api/documents/doc1/presence",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, rec.Body.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if rec.Code != http.StatusMethodNotAllowed {
				// mux skips middleware on method mismatch
				assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			}
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestMetricsRouteOptional(t *testing.T) {
	router := newTestRouter(&fakeCollab{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// brokenWriter accepts headers but fails every body write, like a client
// that hung up mid-response.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenWriter) WriteHeader(status int) { w.status = status }

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := NewHandler(&fakeCollab{conns: 2}, nil, nil)
	h.logger = zap.New(core).Sugar()

	w := &brokenWriter{}
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "connection reset by peer")
}
