// Package artifact provides versioned artifact management for Canvas.
//
// An artifact is the structured payload a generation request produces
// (code, markdown, HTML, ...). Each artifact is identified by a stable
// ArtifactID and carries an append-only version history: versions form a
// contiguous sequence starting at 1, and a stored version's content is
// never rewritten. Content is held in compressed form and only
// decompressed for display or reuse.
//
// Store is the in-memory, session-owned home for this history; PGStore is
// the PostgreSQL-backed equivalent for durable deployments. Both compute
// the next version number and insert the new entry as one indivisible
// step, so concurrent finalizations cannot collide on a version number.
//
// Thread Safety: Store and PGStore are safe for concurrent use.
package artifact
