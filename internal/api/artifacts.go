package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/codec"
	"github.com/koopa0/canvas/internal/session"
)

type artifactHandler struct {
	sessions *session.Manager
	archive  *artifact.PGStore
	logger   *slog.Logger
}

// artifactView is one decompressed version as returned to clients.
type artifactView struct {
	ArtifactID  string    `json:"artifactId"`
	Version     int       `json:"version"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"createdAt"`
	Content     string    `json:"content"`

	// Notice carries a stale-reference message when the requested
	// version no longer exists and the latest was served instead.
	Notice string `json:"notice,omitempty"`
}

func (h *artifactHandler) view(a artifact.Artifact, notice string) (artifactView, error) {
	text, err := codec.Decompress(a.Content)
	if err != nil {
		return artifactView{}, err
	}
	return artifactView{
		ArtifactID:  a.ArtifactID,
		Version:     a.Version,
		Name:        a.Name,
		Description: a.Description,
		Type:        string(a.Type),
		CreatedAt:   a.CreatedAt,
		Content:     text,
		Notice:      notice,
	}, nil
}

func (h *artifactHandler) list(w http.ResponseWriter, r *http.Request) {
	conv, ok := lookupConversation(h.sessions, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": conv.Artifacts().IDs()})
}

// get returns one version of an artifact: the latest by default, a
// specific one with ?version=N. A version that has been dropped (for
// example by an import of older history) degrades to the latest with a
// notice, mirroring how stale message references resolve.
func (h *artifactHandler) get(w http.ResponseWriter, r *http.Request) {
	conv, ok := lookupConversation(h.sessions, w, r)
	if !ok {
		return
	}
	store := conv.Artifacts()
	artifactID := r.PathValue("artifactID")

	var (
		a      artifact.Artifact
		notice string
	)
	if vs := r.URL.Query().Get("version"); vs != "" {
		version, err := strconv.Atoi(vs)
		if err != nil || version < 1 {
			writeError(w, http.StatusBadRequest, "invalid_version", "version must be a positive integer")
			return
		}
		var stale bool
		a, stale, err = store.ResolveReference(artifactID, version)
		if err != nil {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not found")
			return
		}
		if stale {
			notice = staleNotice(version, a.Version)
		}
	} else {
		var found bool
		a, found = store.Latest(artifactID)
		if !found {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not found")
			return
		}
	}

	v, err := h.view(a, notice)
	if err != nil {
		h.logger.Error("decompressing artifact", "artifact_id", artifactID, "error", err)
		writeError(w, http.StatusInternalServerError, "artifact_unreadable", "stored artifact content is unreadable")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *artifactHandler) history(w http.ResponseWriter, r *http.Request) {
	conv, ok := lookupConversation(h.sessions, w, r)
	if !ok {
		return
	}
	artifactID := r.PathValue("artifactID")

	versions := conv.Artifacts().History(artifactID)
	if len(versions) == 0 {
		writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not found")
		return
	}

	views := make([]artifactView, 0, len(versions))
	for _, a := range versions {
		v, err := h.view(a, "")
		if err != nil {
			h.logger.Error("decompressing artifact", "artifact_id", artifactID, "version", a.Version, "error", err)
			writeError(w, http.StatusInternalServerError, "artifact_unreadable", "stored artifact content is unreadable")
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": views})
}

func staleNotice(requested, served int) string {
	return "Version " + strconv.Itoa(requested) + " is no longer available; showing version " +
		strconv.Itoa(served) + " instead."
}
