package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/canvas/internal/generate"
	"github.com/koopa0/canvas/internal/session"
	"github.com/koopa0/canvas/internal/stream"
)

// SSE event types emitted by the generate endpoint.
const (
	EventCommentary = "commentary" // Conversational text delta
	EventArtifact   = "artifact"   // Artifact content delta
	EventDone       = "done"       // Terminal status
	EventError      = "error"      // Request failed before or during streaming
)

// DeltaPayload is the SSE data payload for text deltas.
type DeltaPayload struct {
	Text string `json:"text"`
}

// DonePayload is the SSE data payload carrying the terminal state.
type DonePayload struct {
	Status     string    `json:"status"`
	MessageID  uuid.UUID `json:"messageId"`
	ArtifactID string    `json:"artifactId,omitempty"`
	Version    int       `json:"version,omitempty"`
}

// ErrorPayload is the SSE data payload when a request fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type generateHandler struct {
	sessions    *session.Manager
	coordinator *generate.Coordinator
	logger      *slog.Logger
}

type generateInput struct {
	// MessageID is the triggering message identity used for
	// deduplication. Optional; without it the descriptor content is
	// hashed instead.
	MessageID uuid.UUID `json:"messageId"`

	// Descriptor is the model's structured preamble, passed through
	// verbatim (it may be malformed; the engine repairs it).
	Descriptor json.RawMessage `json:"descriptor"`

	Retry bool `json:"retry"`
}

// generate runs one generation request, streaming progress as SSE.
// Client disconnect cancels the request context; the engine finalizes
// the partial artifact and the events simply stop.
func (h *generateHandler) generate(w http.ResponseWriter, r *http.Request) {
	conv, ok := lookupConversation(h.sessions, w, r)
	if !ok {
		return
	}

	var input generateInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(input.Descriptor) == 0 {
		writeError(w, http.StatusBadRequest, "missing_descriptor", "descriptor is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Deltas and the coordinator's read loop run on the same goroutine,
	// so writing events here needs no synchronization.
	result, err := h.coordinator.Run(r.Context(), generate.Request{
		Conversation:  conv,
		MessageID:     input.MessageID,
		RawDescriptor: string(input.Descriptor),
		Retry:         input.Retry,
		Events: func(out stream.Output, text string) {
			event := EventArtifact
			if out == stream.Commentary {
				event = EventCommentary
			}
			if werr := writeEvent(w, flusher, event, DeltaPayload{Text: text}); werr != nil {
				h.logger.Debug("writing SSE delta", "error", werr)
			}
		},
	})
	if err != nil {
		h.writeRunError(w, flusher, err)
		return
	}

	done := DonePayload{
		Status:    string(result.Status),
		MessageID: result.MessageID,
	}
	if result.Artifact.Version > 0 {
		done.ArtifactID = result.Artifact.ArtifactID
		done.Version = result.Artifact.Version
	}
	_ = writeEvent(w, flusher, EventDone, done)
}

func (h *generateHandler) writeRunError(w io.Writer, f http.Flusher, err error) {
	code := "generation_failed"
	switch {
	case errors.Is(err, generate.ErrInFlight):
		code = "already_running"
	case errors.Is(err, generate.ErrCoolingDown):
		code = "cooling_down"
	case errors.Is(err, generate.ErrBadDescriptor):
		code = "bad_descriptor"
	}
	_ = writeEvent(w, f, EventError, ErrorPayload{Code: code, Message: err.Error()})
}

// writeEvent writes one SSE event: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
