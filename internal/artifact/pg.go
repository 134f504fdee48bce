package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the durable artifact history, keyed by (session, artifact,
// version). The in-memory Store remains the authority during a session;
// PGStore archives finalized versions so history survives process
// restarts.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates a store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger}
}

// SaveVersion archives one finalized version. The version number was
// assigned by the session's in-memory store, so a replay of the same
// (session, artifact, version) is a no-op rather than a conflict.
func (s *PGStore) SaveVersion(ctx context.Context, sessionID uuid.UUID, a Artifact) error {
	if a.ArtifactID == "" {
		return ErrEmptyID
	}
	if a.Version < 1 {
		return fmt.Errorf("archive artifact %s: version %d not assigned", a.ArtifactID, a.Version)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO canvas_artifacts
			(session_id, artifact_id, version, name, description, type, created_at, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, artifact_id, version) DO NOTHING`,
		sessionID, a.ArtifactID, a.Version, a.Name, a.Description, string(a.Type), a.CreatedAt, a.Content)
	if err != nil {
		return fmt.Errorf("archive artifact %s v%d: %w", a.ArtifactID, a.Version, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("artifact version already archived",
			"session_id", sessionID,
			"artifact_id", a.ArtifactID,
			"version", a.Version)
		return nil
	}
	s.logger.Debug("archived artifact version",
		"session_id", sessionID,
		"artifact_id", a.ArtifactID,
		"version", a.Version)
	return nil
}

// Latest returns the newest archived version of artifactID.
func (s *PGStore) Latest(ctx context.Context, sessionID uuid.UUID, artifactID string) (Artifact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT artifact_id, version, name, description, type, created_at, content
		FROM canvas_artifacts
		WHERE session_id = $1 AND artifact_id = $2
		ORDER BY version DESC
		LIMIT 1`,
		sessionID, artifactID)
	return scanArtifact(row, artifactID)
}

// Version returns one archived version of artifactID.
func (s *PGStore) Version(ctx context.Context, sessionID uuid.UUID, artifactID string, version int) (Artifact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT artifact_id, version, name, description, type, created_at, content
		FROM canvas_artifacts
		WHERE session_id = $1 AND artifact_id = $2 AND version = $3`,
		sessionID, artifactID, version)
	return scanArtifact(row, artifactID)
}

// History returns all archived versions of artifactID in ascending order.
func (s *PGStore) History(ctx context.Context, sessionID uuid.UUID, artifactID string) ([]Artifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artifact_id, version, name, description, type, created_at, content
		FROM canvas_artifacts
		WHERE session_id = $1 AND artifact_id = $2
		ORDER BY version ASC`,
		sessionID, artifactID)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", artifactID, err)
	}
	defer rows.Close()

	var history []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows, artifactID)
		if err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history of %s: %w", artifactID, err)
	}
	return history, nil
}

// ResolveReference mirrors Store.ResolveReference for archived history:
// exact version when present, otherwise the latest version with
// stale == true.
func (s *PGStore) ResolveReference(ctx context.Context, sessionID uuid.UUID, artifactID string, version int) (Artifact, bool, error) {
	a, err := s.Version(ctx, sessionID, artifactID, version)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Artifact{}, false, err
	}

	latest, err := s.Latest(ctx, sessionID, artifactID)
	if err != nil {
		return Artifact{}, false, err
	}
	s.logger.Warn("stale artifact reference, falling back to latest",
		"session_id", sessionID,
		"artifact_id", artifactID,
		"requested_version", version,
		"latest_version", latest.Version)
	return latest, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner, artifactID string) (Artifact, error) {
	var a Artifact
	var typ string
	err := row.Scan(&a.ArtifactID, &a.Version, &a.Name, &a.Description, &typ, &a.CreatedAt, &a.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Artifact{}, fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
		}
		return Artifact{}, fmt.Errorf("scan artifact %s: %w", artifactID, err)
	}
	a.Type = ParseType(typ)
	return a, nil
}
