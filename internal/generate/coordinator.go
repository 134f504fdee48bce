// Package generate orchestrates one artifact-generation request end to
// end: dedup/cooldown guarding, descriptor parsing with a bounded repair
// path, instruction building, driving the model's chunk stream through
// the demultiplexer, and finalizing the resulting artifact version under
// cancellation, error, and duplicate-invocation pressure.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/codec"
	"github.com/koopa0/canvas/internal/placeholder"
	"github.com/koopa0/canvas/internal/session"
	"github.com/koopa0/canvas/internal/stream"
)

// Notifier surfaces a user-facing notification (stale references,
// terminal failures). nil disables notifications.
type Notifier func(text string)

// Archiver receives finalized versions for durable storage. Archival is
// best-effort: failures are logged, never propagated into the request.
type Archiver interface {
	SaveVersion(ctx context.Context, sessionID uuid.UUID, a artifact.Artifact) error
}

// Config carries the Coordinator's dependencies.
type Config struct {
	Client   ModelClient
	Registry *Registry
	Logger   *slog.Logger
	Notify   Notifier // optional
	Archive  Archiver // optional
}

func (cfg Config) validate() error {
	if cfg.Client == nil {
		return errors.New("model client is required")
	}
	if cfg.Registry == nil {
		return errors.New("registry is required")
	}
	return nil
}

// Coordinator runs generation requests. It is stateless across requests;
// per-request state (reuse context, accumulation buffer, demultiplexer)
// lives on the stack of Run and is discarded when Run returns.
type Coordinator struct {
	client   ModelClient
	registry *Registry
	logger   *slog.Logger
	notify   Notifier
	archive  Archiver
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:   cfg.Client,
		registry: cfg.Registry,
		logger:   logger,
		notify:   cfg.Notify,
		archive:  cfg.Archive,
	}, nil
}

// Request describes one generation trigger.
type Request struct {
	// Conversation is the session this generation belongs to. Required.
	Conversation *session.Conversation

	// MessageID is the triggering message's stable identity, used as the
	// dedup key. uuid.Nil falls back to hashing RawDescriptor.
	MessageID uuid.UUID

	// RawDescriptor is the model's first structured message (JSON).
	RawDescriptor string

	// Retry marks an explicit user retry, which bypasses the cooldown
	// guard (never the in-flight guard).
	Retry bool

	// Events, when set, receives every demultiplexed text delta as it is
	// flushed, for live transport to a client.
	Events func(out stream.Output, text string)
}

// Result reports how a request ended.
type Result struct {
	Status     session.Status
	MessageID  uuid.UUID // the assistant message created for this request
	Artifact   artifact.Artifact
	Commentary string
}

// Run executes one generation request to completion, cancellation, or
// failure. The returned error is non-nil only for the guard no-ops and
// the terminal Cancelled state; user cancellation is a normal result
// with Status Stopped and the partial artifact finalized.
func (c *Coordinator) Run(ctx context.Context, req Request) (Result, error) {
	if req.Conversation == nil {
		return Result{}, errors.New("conversation is required")
	}

	key := DedupKey(req.MessageID, req.RawDescriptor)
	if err := c.registry.Begin(key, req.Retry); err != nil {
		c.logger.Debug("generation suppressed", "key", key, "error", err)
		return Result{}, err
	}
	// Every terminal state clears the in-flight marker and starts the
	// cooldown window.
	defer c.registry.Finish(key)

	conv := req.Conversation
	msgID := conv.StartAssistantMessage()

	desc, err := c.descriptor(ctx, conv, msgID, req.RawDescriptor)
	if err != nil {
		return Result{Status: session.StatusCancelled, MessageID: msgID}, err
	}

	result, err := c.generate(ctx, conv, msgID, desc, req.Events)
	result.MessageID = msgID
	return result, err
}

// descriptor parses the raw preamble, taking the single automatic repair
// round-trip when it is malformed. A repaired descriptor restarts
// generation once (transient Retry status); a failed repair is terminal.
func (c *Coordinator) descriptor(ctx context.Context, conv *session.Conversation, msgID uuid.UUID, raw string) (artifact.Descriptor, error) {
	desc, err := ParseDescriptor(raw)
	if err == nil {
		return desc, nil
	}

	c.logger.Warn("artifact descriptor failed to parse, attempting repair", "error", err)
	c.setStatus(conv, msgID, session.StatusRetry)

	desc, repairErr := repairDescriptor(ctx, c.client, raw)
	if repairErr != nil {
		c.logger.Error("descriptor repair failed", "error", repairErr)
		c.setStatus(conv, msgID, session.StatusCancelled)
		c.notifyUser("The artifact could not be created because its description was malformed. " +
			"Please resend your request, ideally with a stronger model.")
		return artifact.Descriptor{}, fmt.Errorf("%w: %w", ErrBadDescriptor, repairErr)
	}

	c.logger.Info("descriptor repaired, restarting generation", "artifact_id", desc.ID)
	c.setStatus(conv, msgID, session.StatusRunning)
	return desc, nil
}

// generate drives the model stream into the demultiplexer and finalizes
// the version. The read loop is single-threaded: chunk N is fully
// processed, including flush side effects, before chunk N+1 is read.
func (c *Coordinator) generate(ctx context.Context, conv *session.Conversation, msgID uuid.UUID, desc artifact.Descriptor, events func(stream.Output, string)) (Result, error) {
	store := conv.Artifacts()

	// Request-scoped reuse context, built from the previous latest
	// version of the artifact being revised.
	var reuse placeholder.Context
	if prev, ok := store.Latest(desc.ID); ok {
		text, err := codec.Decompress(prev.Content)
		if err != nil {
			c.logger.Warn("previous version unreadable, generating without reuse context",
				"artifact_id", desc.ID, "version", prev.Version, "error", err)
		} else {
			reuse = placeholder.BuildContext(text)
		}
	}

	prompt := BuildInstructions(desc.Instructions, c.includedArtifacts(store, desc), reuse)

	// Request-scoped accumulation buffers, discarded when this call
	// returns.
	var artifactBuf, commentaryBuf strings.Builder
	flush := func(out stream.Output, text string) error {
		if out == stream.Artifact {
			artifactBuf.WriteString(text)
			store.PutDraft(desc, artifactBuf.String())
		} else {
			commentaryBuf.WriteString(text)
			if err := conv.AppendAssistantText(msgID, text); err != nil {
				return err
			}
		}
		if events != nil {
			events(out, text)
		}
		return nil
	}
	demux := stream.New(flush, func(text string) string {
		return placeholder.Resolve(text, reuse, c.logger)
	})

	streamErr := c.client.Stream(ctx, prompt, func(ctx context.Context, text string) error {
		// Cancellation is checked at every suspension point of the read
		// loop, not just inside the transport.
		if err := ctx.Err(); err != nil {
			return err
		}
		return demux.Write(text)
	})

	// The held buffer tail is flushed on every exit path; a partial
	// marker at true stream end is literal artifact text.
	if err := demux.Close(); err != nil && streamErr == nil {
		streamErr = err
	}

	switch {
	case streamErr == nil:
		return c.finalize(ctx, conv, msgID, desc, artifactBuf.String(), commentaryBuf.String(), session.StatusComplete)

	case errors.Is(streamErr, context.Canceled) || ctx.Err() != nil:
		// Caller-initiated abort: not an error. Partial artifacts are
		// valid, inspectable results.
		c.logger.Info("generation stopped by caller",
			"artifact_id", desc.ID, "accumulated_bytes", artifactBuf.Len())
		return c.finalize(context.WithoutCancel(ctx), conv, msgID, desc, artifactBuf.String(), commentaryBuf.String(), session.StatusStopped)

	default:
		store.ClearDraft(desc.ID)
		c.setStatus(conv, msgID, session.StatusCancelled)
		c.notifyUser("Artifact generation failed mid-stream. Please resend your request.")
		return Result{Status: session.StatusCancelled, Commentary: commentaryBuf.String()},
			fmt.Errorf("generation stream for %q: %w", desc.ID, streamErr)
	}
}

// finalize appends the accumulated content as the next version and
// records the outcome on the triggering message.
func (c *Coordinator) finalize(ctx context.Context, conv *session.Conversation, msgID uuid.UUID, desc artifact.Descriptor, content, commentary string, status session.Status) (Result, error) {
	a, err := conv.Artifacts().Append(desc, content)
	if err != nil {
		c.setStatus(conv, msgID, session.StatusCancelled)
		return Result{Status: session.StatusCancelled, Commentary: commentary},
			fmt.Errorf("finalize artifact %q: %w", desc.ID, err)
	}

	if err := conv.AttachArtifact(msgID, a.Detail()); err != nil {
		c.logger.Warn("attaching artifact detail", "error", err)
	}
	c.setStatus(conv, msgID, status)

	if c.archive != nil {
		if err := c.archive.SaveVersion(ctx, conv.ID(), a); err != nil {
			c.logger.Warn("archiving artifact version",
				"artifact_id", a.ArtifactID, "version", a.Version, "error", err)
		}
	}

	c.logger.Info("artifact version finalized",
		"artifact_id", a.ArtifactID,
		"version", a.Version,
		"status", status)
	return Result{Status: status, Artifact: a, Commentary: commentary}, nil
}

// includedArtifacts gathers the decompressed latest content of every
// artifact the descriptor asks to cross-reference. Unknown ids are
// logged and skipped.
func (c *Coordinator) includedArtifacts(store *artifact.Store, desc artifact.Descriptor) []IncludedArtifact {
	var included []IncludedArtifact
	for _, id := range desc.IncludeArtifactsID {
		text, err := store.LatestText(id)
		if err != nil {
			c.logger.Warn("included artifact unavailable", "artifact_id", id, "error", err)
			continue
		}
		included = append(included, IncludedArtifact{ID: id, Content: text})
	}
	return included
}

func (c *Coordinator) setStatus(conv *session.Conversation, msgID uuid.UUID, status session.Status) {
	if err := conv.SetStatus(msgID, status); err != nil {
		c.logger.Warn("setting message status", "status", status, "error", err)
	}
}

func (c *Coordinator) notifyUser(text string) {
	if c.notify == nil {
		return
	}
	c.notify(text)
}
