package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/canvas/internal/session"
)

// maxBodyBytes bounds request bodies. Session imports carry compressed
// artifact history, so the limit is generous.
const maxBodyBytes = 16 << 20

type sessionHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

type sessionSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  int       `json:"messages"`
}

func summarize(conv *session.Conversation) sessionSummary {
	return sessionSummary{
		ID:        conv.ID(),
		Title:     conv.Title(),
		CreatedAt: conv.CreatedAt(),
		Messages:  len(conv.Messages()),
	}
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	conv := h.sessions.Create(body.Title)
	writeJSON(w, http.StatusCreated, summarize(conv))
}

func (h *sessionHandler) list(w http.ResponseWriter, _ *http.Request) {
	all := h.sessions.List()
	summaries := make([]sessionSummary, 0, len(all))
	for _, conv := range all {
		summaries = append(summaries, summarize(conv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        conv.ID(),
		"title":     conv.Title(),
		"createdAt": conv.CreatedAt(),
		"messages":  conv.Messages(),
	})
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID")
		return
	}
	h.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) export(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	data, err := conv.Export()
	if err != nil {
		h.logger.Error("exporting session", "session_id", conv.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "export_failed", "failed to export session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "session-"+conv.ID().String()+".json"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("writing export body", "error", err)
	}
}

func (h *sessionHandler) importSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var buf json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&buf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session snapshot")
		return
	}

	conv, err := h.sessions.ImportSession(buf)
	if err != nil {
		h.logger.Warn("importing session", "error", err)
		writeError(w, http.StatusBadRequest, "import_failed", "failed to import session snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, summarize(conv))
}

func (h *sessionHandler) addMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	msg := conv.AddUserMessage(body.Text)
	writeJSON(w, http.StatusCreated, msg)
}

// conversation resolves the {id} path segment to a live session,
// writing the error response itself on failure.
func (h *sessionHandler) conversation(w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	return lookupConversation(h.sessions, w, r)
}

func lookupConversation(m *session.Manager, w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID")
		return nil, false
	}
	conv, err := m.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
		return nil, false
	}
	return conv, true
}
