package generate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/codec"
	"github.com/koopa0/canvas/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModel lets each test supply exactly the stream and completion
// behavior it needs.
type scriptedModel struct {
	mu       sync.Mutex
	stream   func(ctx context.Context, prompt string, onChunk ChunkFunc) error
	complete func(ctx context.Context, prompt string) (string, error)

	streamCalls   int
	completeCalls int
	prompts       []string
}

func (m *scriptedModel) Stream(ctx context.Context, prompt string, onChunk ChunkFunc) error {
	m.mu.Lock()
	m.streamCalls++
	m.prompts = append(m.prompts, prompt)
	fn := m.stream
	m.mu.Unlock()
	if fn == nil {
		return errors.New("no stream scripted")
	}
	return fn(ctx, prompt, onChunk)
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.completeCalls++
	fn := m.complete
	m.mu.Unlock()
	if fn == nil {
		return "", errors.New("no completion scripted")
	}
	return fn(ctx, prompt)
}

// emitChunks streams a fixed chunk sequence through the callback.
func emitChunks(chunks ...string) func(context.Context, string, ChunkFunc) error {
	return func(ctx context.Context, _ string, onChunk ChunkFunc) error {
		for _, ch := range chunks {
			if err := onChunk(ctx, ch); err != nil {
				return err
			}
		}
		return nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, model ModelClient) (*Coordinator, *Registry) {
	t.Helper()
	registry := NewRegistry(DefaultCooldown)
	c, err := New(Config{
		Client:   model,
		Registry: registry,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	return c, registry
}

const validDescriptor = `{
	"id": "app-js",
	"name": "App",
	"description": "Example component",
	"instructions": "Log a number, then say goodbye",
	"type": "application/vnd.ant.code"
}`

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		stream: emitChunks(
			"// App.js\nconsole.log(1)\n",
			"<>",
			"Let me know if you need changes.",
			"</>",
		),
	}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: validDescriptor,
	})
	require.NoError(t, err)

	assert.Equal(t, session.StatusComplete, res.Status)
	assert.Equal(t, 1, res.Artifact.Version)
	assert.Equal(t, "Let me know if you need changes.", res.Commentary)

	text, err := codec.Decompress(res.Artifact.Content)
	require.NoError(t, err)
	assert.Equal(t, "// App.js\nconsole.log(1)\n", text)

	// The triggering message carries the commentary, the final status,
	// and the produced version.
	msg, ok := conv.Message(res.MessageID)
	require.True(t, ok)
	assert.Equal(t, session.StatusComplete, msg.Status)
	assert.Equal(t, "Let me know if you need changes.", msg.Text)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, 1, msg.Artifacts[0].Version)

	// No live-progress draft survives finalization.
	_, ok = conv.Artifacts().Draft("app-js")
	assert.False(t, ok)
}

func TestRunDeduplicatesConcurrentInvocations(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	model := &scriptedModel{
		stream: func(ctx context.Context, _ string, onChunk ChunkFunc) error {
			close(started)
			<-release
			return onChunk(ctx, "body")
		},
	}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())
	msgID := uuid.New()

	done := make(chan Result, 1)
	go func() {
		res, err := c.Run(context.Background(), Request{
			Conversation:  conv,
			MessageID:     msgID,
			RawDescriptor: validDescriptor,
		})
		assert.NoError(t, err)
		done <- res
	}()

	<-started
	// The duplicate fires before the first stream finishes and must be
	// suppressed without touching the model.
	_, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     msgID,
		RawDescriptor: validDescriptor,
	})
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	res := <-done
	assert.Equal(t, session.StatusComplete, res.Status)
	assert.Equal(t, 1, res.Artifact.Version)

	history := conv.Artifacts().History("app-js")
	assert.Len(t, history, 1, "duplicate invocation must not produce a version")
	assert.Equal(t, 1, model.streamCalls)
}

func TestRunCooldownAndRetry(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{stream: emitChunks("v1")}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())
	msgID := uuid.New()

	req := Request{Conversation: conv, MessageID: msgID, RawDescriptor: validDescriptor}

	_, err := c.Run(context.Background(), req)
	require.NoError(t, err)

	// Immediate re-fire of the same logical request is a no-op.
	_, err = c.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrCoolingDown)

	// An explicit retry goes through and produces the next version.
	model.stream = emitChunks("v2")
	retried := req
	retried.Retry = true
	res, err := c.Run(context.Background(), retried)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Artifact.Version)
}

func TestRunStopFinalizesPartialArtifact(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &scriptedModel{
		stream: func(ctx context.Context, _ string, onChunk ChunkFunc) error {
			if err := onChunk(ctx, "line 1\n"); err != nil {
				return err
			}
			cancel()
			return onChunk(ctx, "line 2\n")
		},
	}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())

	res, err := c.Run(ctx, Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: validDescriptor,
	})
	require.NoError(t, err, "user stop is not an error")

	assert.Equal(t, session.StatusStopped, res.Status)
	text, err := codec.Decompress(res.Artifact.Content)
	require.NoError(t, err)
	assert.Equal(t, "line 1\n", text, "content after the stop point must not appear")

	msg, _ := conv.Message(res.MessageID)
	assert.Equal(t, session.StatusStopped, msg.Status)
}

func TestRunStreamFailureIsTerminal(t *testing.T) {
	t.Parallel()

	var notified string
	model := &scriptedModel{
		stream: func(ctx context.Context, _ string, onChunk ChunkFunc) error {
			if err := onChunk(ctx, "half an artifact"); err != nil {
				return err
			}
			return errors.New("connection reset")
		},
	}
	registry := NewRegistry(DefaultCooldown)
	c, err := New(Config{
		Client:   model,
		Registry: registry,
		Logger:   testLogger(),
		Notify:   func(text string) { notified = text },
	})
	require.NoError(t, err)
	conv := session.New(testLogger())

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: validDescriptor,
	})
	require.Error(t, err)
	assert.Equal(t, session.StatusCancelled, res.Status)
	assert.Contains(t, notified, "resend")

	// Nothing is versioned and the draft is gone.
	assert.Empty(t, conv.Artifacts().History("app-js"))
	_, ok := conv.Artifacts().Draft("app-js")
	assert.False(t, ok)

	msg, _ := conv.Message(res.MessageID)
	assert.Equal(t, session.StatusCancelled, msg.Status)
}

func TestRunRepairsMalformedDescriptor(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		stream: emitChunks("content"),
		complete: func(context.Context, string) (string, error) {
			return validDescriptor, nil
		},
	}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: "id: app-js, name: App",
	})
	require.NoError(t, err)

	assert.Equal(t, session.StatusComplete, res.Status)
	assert.Equal(t, 1, model.completeCalls, "exactly one repair round-trip")
	assert.Equal(t, 1, model.streamCalls)
}

func TestRunRepairFailureCancels(t *testing.T) {
	t.Parallel()

	var notified string
	model := &scriptedModel{
		complete: func(context.Context, string) (string, error) {
			return "still broken", nil
		},
	}
	registry := NewRegistry(DefaultCooldown)
	c, err := New(Config{
		Client:   model,
		Registry: registry,
		Logger:   testLogger(),
		Notify:   func(text string) { notified = text },
	})
	require.NoError(t, err)
	conv := session.New(testLogger())

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: "not a descriptor",
	})
	require.ErrorIs(t, err, ErrBadDescriptor)
	assert.Equal(t, session.StatusCancelled, res.Status)
	assert.Contains(t, notified, "stronger model")
	assert.Zero(t, model.streamCalls, "no generation stream after a failed repair")

	msg, _ := conv.Message(res.MessageID)
	assert.Equal(t, session.StatusCancelled, msg.Status)
}

func TestRunRevisionResolvesPlaceholders(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())

	desc := artifact.Descriptor{ID: "app-js", Name: "App", Instructions: "Extend the text"}
	_, err := conv.Artifacts().Append(desc, "the original section")
	require.NoError(t, err)

	// The model references the unchanged section by key instead of
	// repeating it.
	model.stream = emitChunks("~A0", " plus a new ending")

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: validDescriptor,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Artifact.Version)
	text, err := codec.Decompress(res.Artifact.Content)
	require.NoError(t, err)
	assert.Equal(t, "the original section plus a new ending", text)

	// The outbound prompt carried the reuse section list.
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "~A0")
	assert.Contains(t, model.prompts[0], "the original section")
}

func TestRunIncludedArtifactsInPrompt(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{stream: emitChunks("body")}
	c, _ := newTestCoordinator(t, model)
	conv := session.New(testLogger())

	_, err := conv.Artifacts().Append(
		artifact.Descriptor{ID: "styles-css", Name: "Styles"}, ".app { color: red }")
	require.NoError(t, err)

	raw := strings.Replace(validDescriptor, `"type":`,
		`"includeArtifactsId": ["styles-css", "missing"], "type":`, 1)
	_, err = c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: raw,
	})
	require.NoError(t, err)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], ".app { color: red }")
	assert.NotContains(t, model.prompts[0], `"missing"`)
}

type captureArchive struct {
	mu       sync.Mutex
	sessions []uuid.UUID
	saved    []artifact.Artifact
}

func (a *captureArchive) SaveVersion(_ context.Context, sessionID uuid.UUID, art artifact.Artifact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, sessionID)
	a.saved = append(a.saved, art)
	return nil
}

func TestRunArchivesFinalizedVersions(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{stream: emitChunks("content")}
	archive := &captureArchive{}
	registry := NewRegistry(DefaultCooldown)
	c, err := New(Config{
		Client:   model,
		Registry: registry,
		Logger:   testLogger(),
		Archive:  archive,
	})
	require.NoError(t, err)
	conv := session.New(testLogger())

	res, err := c.Run(context.Background(), Request{
		Conversation:  conv,
		MessageID:     uuid.New(),
		RawDescriptor: validDescriptor,
	})
	require.NoError(t, err)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, conv.ID(), archive.sessions[0])
	assert.Equal(t, res.Artifact.Version, archive.saved[0].Version)
}
