package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/canvas/internal/generate"
	"github.com/koopa0/canvas/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chunkModel streams a fixed chunk sequence.
type chunkModel struct {
	chunks []string
}

func (m *chunkModel) Stream(ctx context.Context, _ string, onChunk generate.ChunkFunc) error {
	for _, ch := range m.chunks {
		if err := onChunk(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

func (m *chunkModel) Complete(context.Context, string) (string, error) {
	return "", assert.AnError
}

func newTestServer(t *testing.T, model generate.ModelClient) (*Server, *session.Manager) {
	t.Helper()
	if model == nil {
		model = &chunkModel{chunks: []string{"content"}}
	}
	coordinator, err := generate.New(generate.Config{
		Client:   model,
		Registry: generate.NewRegistry(0),
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	sessions := session.NewManager(testLogger())
	srv, err := NewServer(ServerConfig{
		Logger:      testLogger(),
		Coordinator: coordinator,
		Sessions:    sessions,
		RateBurst:   1000,
	})
	require.NoError(t, err)
	return srv, sessions
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	// Create.
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions", map[string]string{"title": "Counter app"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created sessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Counter app", created.Title)

	// Add a user message.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+created.ID.String()+"/messages",
		map[string]string{"text": "Build me a counter"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// List shows it.
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, 1, listed.Sessions[0].Messages)

	// Get returns the transcript.
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Build me a counter")

	// Delete, then the session is gone.
	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/sessions/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionExportImport(t *testing.T) {
	t.Parallel()
	srv, sessions := newTestServer(t, nil)

	conv := sessions.Create("to export")
	conv.AddUserMessage("hello")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+conv.ID().String()+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := rec.Body.Bytes()

	sessions.Delete(conv.ID())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/import", bytes.NewReader(snapshot))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	restored, err := sessions.Get(conv.ID())
	require.NoError(t, err)
	require.Len(t, restored.Messages(), 1)
	assert.Equal(t, "hello", restored.Messages()[0].Text)
}

func TestSessionValidation(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Empty message text is rejected.
	sessions := doJSON(t, srv, http.MethodPost, "/api/v1/sessions", nil)
	var created sessionSummary
	require.NoError(t, json.Unmarshal(sessions.Body.Bytes(), &created))
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+created.ID.String()+"/messages",
		map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewServerRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewServer(ServerConfig{Sessions: session.NewManager(testLogger())})
	assert.Error(t, err)

	coordinator, err := generate.New(generate.Config{
		Client:   &chunkModel{},
		Registry: generate.NewRegistry(0),
	})
	require.NoError(t, err)
	_, err = NewServer(ServerConfig{Coordinator: coordinator})
	assert.Error(t, err)
}
