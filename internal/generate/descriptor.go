package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/koopa0/canvas/internal/artifact"
)

// ErrBadDescriptor wraps any failure to obtain a usable descriptor from
// the model's structured preamble, including a failed repair attempt.
var ErrBadDescriptor = errors.New("unparsable artifact descriptor")

// ParseDescriptor parses the model's first structured message. The id is
// the artifact's stable identity and must be present; everything else
// may be empty.
func ParseDescriptor(raw string) (artifact.Descriptor, error) {
	var desc artifact.Descriptor
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &desc); err != nil {
		return artifact.Descriptor{}, fmt.Errorf("%w: %w", ErrBadDescriptor, err)
	}
	if desc.ID == "" {
		return artifact.Descriptor{}, fmt.Errorf("%w: missing id", ErrBadDescriptor)
	}
	return desc, nil
}

// repairPrompt asks the model to reformat its own malformed preamble.
// Kept deliberately small: this is a recovery call, not a regeneration.
const repairPrompt = `The following text was intended to be a single JSON object with the keys
"id", "name", "description", "instructions", "type" and "includeArtifactsId"
(an array of strings), but it does not parse as JSON. Rewrite it as strictly
valid JSON with exactly those keys, preserving the values. Output only the
JSON object - no code fences, no explanations.

%s`

// repairDescriptor makes the single automatic repair attempt: one small
// completion asking the model to reformat the exact same text, then one
// re-parse. There is no second attempt.
func repairDescriptor(ctx context.Context, client ModelClient, raw string) (artifact.Descriptor, error) {
	fixed, err := client.Complete(ctx, fmt.Sprintf(repairPrompt, raw))
	if err != nil {
		return artifact.Descriptor{}, fmt.Errorf("descriptor repair: %w", err)
	}
	return ParseDescriptor(stripFences(fixed))
}

// stripFences removes a surrounding markdown code fence, which models
// add despite instructions to the contrary.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
