// Package session holds the conversation transcript for one chat
// session and owns that session's artifact version store.
//
// The transcript is mutated by the generation coordinator's flush step
// only; messages accumulate streamed commentary text and record which
// artifact versions they produced via BlockDetail snapshots. The whole
// session (transcript plus compressed artifact history) round-trips
// through Export/Import.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/canvas/internal/artifact"
)

// Status tracks a message's generation lifecycle. Running transitions to
// exactly one of the terminal states; Retry loops back into Running at
// most once.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusStopped   Status = "stopped"
	StatusCancelled Status = "cancelled"
	StatusRetry     Status = "retry"
)

// Role constants for transcript messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMessageNotFound is returned when the referenced message is not in
// the transcript.
var ErrMessageNotFound = errors.New("message not found")

// Message is one transcript entry. Artifacts records which artifact
// versions this message produced, as snapshots rather than live
// pointers.
type Message struct {
	ID        uuid.UUID              `json:"id"`
	Role      string                 `json:"role"`
	Text      string                 `json:"text"`
	Status    Status                 `json:"status,omitempty"`
	Artifacts []artifact.BlockDetail `json:"artifacts,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Conversation is one chat session: transcript plus artifact history.
// Safe for concurrent use.
type Conversation struct {
	mu        sync.Mutex
	id        uuid.UUID
	title     string
	createdAt time.Time
	messages  []Message
	artifacts *artifact.Store
	logger    *slog.Logger
}

// New creates an empty conversation with a fresh artifact store.
func New(logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		artifacts: artifact.NewStore(logger),
		logger:    logger,
	}
}

// ID returns the session identity.
func (c *Conversation) ID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// CreatedAt returns the session creation time.
func (c *Conversation) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}

// Artifacts returns the session-owned artifact store.
func (c *Conversation) Artifacts() *artifact.Store {
	return c.artifacts
}

// SetTitle sets the display title.
func (c *Conversation) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
}

// Title returns the display title.
func (c *Conversation) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// AddUserMessage appends a user message and returns it.
func (c *Conversation) AddUserMessage(text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.New(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// StartAssistantMessage appends an empty assistant message in the
// Running state and returns its id. Streamed commentary is accumulated
// into it with AppendAssistantText.
func (c *Conversation) StartAssistantMessage() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.New(),
		Role:      RoleAssistant,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg.ID
}

// AppendAssistantText appends streamed commentary text to a message.
func (c *Conversation) AppendAssistantText(id uuid.UUID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(id)
	if msg == nil {
		return fmt.Errorf("append text to %s: %w", id, ErrMessageNotFound)
	}
	msg.Text += text
	return nil
}

// SetStatus updates a message's generation status.
func (c *Conversation) SetStatus(id uuid.UUID, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(id)
	if msg == nil {
		return fmt.Errorf("set status of %s: %w", id, ErrMessageNotFound)
	}
	msg.Status = status
	return nil
}

// AttachArtifact records that a message produced the given artifact
// version.
func (c *Conversation) AttachArtifact(id uuid.UUID, detail artifact.BlockDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(id)
	if msg == nil {
		return fmt.Errorf("attach artifact to %s: %w", id, ErrMessageNotFound)
	}
	msg.Artifacts = append(msg.Artifacts, detail)
	return nil
}

// Message returns a copy of one transcript entry.
func (c *Conversation) Message(id uuid.UUID) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(id)
	if msg == nil {
		return Message{}, false
	}
	return *msg, true
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) findLocked(id uuid.UUID) *Message {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return &c.messages[i]
		}
	}
	return nil
}

// ResolveBlockDetail resolves a message's artifact snapshot against the
// current store. A version that no longer resolves (e.g. after an
// import that reset history) falls back to the latest version; notice is
// non-empty in that case so the UI can tell the user they were
// redirected instead of failing silently.
func (c *Conversation) ResolveBlockDetail(detail artifact.BlockDetail) (artifact.Artifact, string, error) {
	a, stale, err := c.artifacts.ResolveReference(detail.ArtifactID, detail.Version)
	if err != nil {
		return artifact.Artifact{}, "", err
	}
	var notice string
	if stale {
		notice = fmt.Sprintf("Version %d of %q is no longer available; showing version %d instead.",
			detail.Version, detail.ArtifactID, a.Version)
	}
	return a, notice, nil
}

// export is the serialized session layout. Artifact content stays
// compressed inside the nested store export.
type export struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Messages  []Message       `json:"messages"`
	Artifacts json.RawMessage `json:"artifacts"`
}

// Export serializes the session for download or backup.
func (c *Conversation) Export() ([]byte, error) {
	artifacts, err := c.artifacts.Export()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(export{
		ID:        c.id,
		Title:     c.title,
		CreatedAt: c.createdAt,
		Messages:  c.messages,
		Artifacts: artifacts,
	})
	if err != nil {
		return nil, fmt.Errorf("export session %s: %w", c.id, err)
	}
	return data, nil
}

// Import rebuilds a conversation from Export output.
func Import(data []byte, logger *slog.Logger) (*Conversation, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var e export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("import session: %w", err)
	}

	artifacts, err := artifact.ImportStore(e.Artifacts, logger)
	if err != nil {
		return nil, err
	}

	return &Conversation{
		id:        e.ID,
		title:     e.Title,
		createdAt: e.CreatedAt,
		messages:  e.Messages,
		artifacts: artifacts,
		logger:    logger,
	}, nil
}
