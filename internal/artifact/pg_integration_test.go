//go:build integration

package artifact_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/codec"
	"github.com/koopa0/canvas/internal/testutil"
)

func TestPGStoreArchive(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := artifact.NewPGStore(testDB.Pool, testutil.NewTestLogger())
	sessionID := uuid.New()

	mkVersion := func(version int, text string) artifact.Artifact {
		return artifact.Artifact{
			ArtifactID:  "app-js",
			Version:     version,
			Name:        "App",
			Description: "Main component",
			Type:        artifact.TypeCode,
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
			Content:     codec.Compress(text),
		}
	}

	require.NoError(t, store.SaveVersion(ctx, sessionID, mkVersion(1, "v1 content")))
	require.NoError(t, store.SaveVersion(ctx, sessionID, mkVersion(2, "v2 content")))

	// Replaying an already-archived version is a silent no-op.
	require.NoError(t, store.SaveVersion(ctx, sessionID, mkVersion(2, "different content")))

	latest, err := store.Latest(ctx, sessionID, "app-js")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	text, err := codec.Decompress(latest.Content)
	require.NoError(t, err)
	assert.Equal(t, "v2 content", text, "replay must not overwrite")

	v1, err := store.Version(ctx, sessionID, "app-js", 1)
	require.NoError(t, err)
	assert.Equal(t, "App", v1.Name)

	history, err := store.History(ctx, sessionID, "app-js")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)

	// Stale reference degrades to the latest.
	a, stale, err := store.ResolveReference(ctx, sessionID, "app-js", 9)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, 2, a.Version)

	// Sessions are isolated.
	_, err = store.Latest(ctx, uuid.New(), "app-js")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	// Unknown artifacts report ErrNotFound.
	_, err = store.Latest(ctx, sessionID, "nope")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestPGStoreSaveVersionValidation(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := artifact.NewPGStore(testDB.Pool, testutil.NewTestLogger())
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveVersion(ctx, uuid.New(), artifact.Artifact{Version: 1}), artifact.ErrEmptyID)
	assert.Error(t, store.SaveVersion(ctx, uuid.New(), artifact.Artifact{ArtifactID: "a", Version: 0}))
}
