package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/koopa0/canvas/internal/codec"
)

// Store holds artifact version history in memory, scoped to one
// conversation session. The session owns the store; versions are only
// appended, never mutated.
type Store struct {
	mu       sync.Mutex
	versions map[string][]Artifact
	drafts   map[string]Artifact
	logger   *slog.Logger
}

// NewStore creates an empty store. A nil logger uses the default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		versions: make(map[string][]Artifact),
		drafts:   make(map[string]Artifact),
		logger:   logger,
	}
}

// NextVersion returns the version number the next Append for artifactID
// will produce: 1 when no versions exist, max+1 otherwise.
func (s *Store) NextVersion(artifactID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextVersionLocked(artifactID)
}

func (s *Store) nextVersionLocked(artifactID string) int {
	history := s.versions[artifactID]
	if len(history) == 0 {
		return 1
	}
	return history[len(history)-1].Version + 1
}

// Append finalizes a new version: the version number is computed and the
// entry inserted under one lock acquisition, so two concurrent
// finalizations for the same artifact cannot claim the same number.
// Content is compressed before storage.
func (s *Store) Append(desc Descriptor, content string) (Artifact, error) {
	if desc.ID == "" {
		return Artifact{}, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := Artifact{
		ArtifactID:  desc.ID,
		Version:     s.nextVersionLocked(desc.ID),
		Name:        desc.Name,
		Description: desc.Description,
		Type:        ParseType(desc.Type),
		CreatedAt:   time.Now().UTC(),
		Content:     codec.Compress(content),
	}
	s.versions[desc.ID] = append(s.versions[desc.ID], a)
	delete(s.drafts, desc.ID)

	s.logger.Debug("appended artifact version",
		"artifact_id", a.ArtifactID,
		"version", a.Version,
		"compressed_bytes", len(a.Content))
	return a, nil
}

// Latest returns the newest version of artifactID, if any exist.
func (s *Store) Latest(artifactID string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.versions[artifactID]
	if len(history) == 0 {
		return Artifact{}, false
	}
	return history[len(history)-1], true
}

// LatestText returns the decompressed content of the newest version.
func (s *Store) LatestText(artifactID string) (string, error) {
	a, ok := s.Latest(artifactID)
	if !ok {
		return "", fmt.Errorf("latest of %q: %w", artifactID, ErrNotFound)
	}
	return codec.Decompress(a.Content)
}

// Version returns one specific version of artifactID.
func (s *Store) Version(artifactID string, version int) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.versions[artifactID] {
		if a.Version == version {
			return a, true
		}
	}
	return Artifact{}, false
}

// History returns all versions of artifactID in ascending order.
func (s *Store) History(artifactID string) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.versions[artifactID]
	out := make([]Artifact, len(history))
	copy(out, history)
	return out
}

// IDs lists artifact ids with at least one version, sorted for stable
// output.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveReference resolves a version reference from a BlockDetail. If
// the requested version is present it is returned with stale == false.
// A missing version falls back to the latest available version with
// stale == true so the caller can surface a corrective notice instead of
// failing. ErrNotFound is returned only when no version of the artifact
// exists at all.
func (s *Store) ResolveReference(artifactID string, version int) (Artifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.versions[artifactID]
	if len(history) == 0 {
		return Artifact{}, false, fmt.Errorf("resolve %q v%d: %w", artifactID, version, ErrNotFound)
	}
	for _, a := range history {
		if a.Version == version {
			return a, false, nil
		}
	}
	latest := history[len(history)-1]
	s.logger.Warn("stale artifact reference, falling back to latest",
		"artifact_id", artifactID,
		"requested_version", version,
		"latest_version", latest.Version)
	return latest, true, nil
}

// PutDraft records in-progress content for the version currently being
// generated, so observers see live progress. Drafts never enter the
// version history; the draft is dropped when Append finalizes it.
func (s *Store) PutDraft(desc Descriptor, content string) Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := Artifact{
		ArtifactID:  desc.ID,
		Version:     s.nextVersionLocked(desc.ID),
		Name:        desc.Name,
		Description: desc.Description,
		Type:        ParseType(desc.Type),
		CreatedAt:   time.Now().UTC(),
		Content:     codec.Compress(content),
	}
	s.drafts[desc.ID] = a
	return a
}

// Draft returns the in-progress artifact for artifactID, if one exists.
func (s *Store) Draft(artifactID string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.drafts[artifactID]
	return a, ok
}

// ClearDraft discards the in-progress artifact for artifactID.
func (s *Store) ClearDraft(artifactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, artifactID)
}

// Export serializes the full version history as JSON. Content stays in
// compressed form (base64 on the wire); drafts are transient and not
// exported.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.versions)
	if err != nil {
		return nil, fmt.Errorf("export artifact store: %w", err)
	}
	return data, nil
}

// ImportStore rebuilds a store from Export output.
func ImportStore(data []byte, logger *slog.Logger) (*Store, error) {
	s := NewStore(logger)
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.versions); err != nil {
		return nil, fmt.Errorf("import artifact store: %w", err)
	}
	return s, nil
}
