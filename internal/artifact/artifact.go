package artifact

import (
	"time"
)

// Type represents the artifact content type.
type Type string

const (
	TypeCode     Type = "code"
	TypeMarkdown Type = "markdown"
	TypeHTML     Type = "html"
	TypeSVG      Type = "svg"
	TypeMermaid  Type = "mermaid"
	TypeReact    Type = "react"
)

// ParseType validates a type name against the closed set of allowed
// artifact types. Unknown or invalid names map to the empty type rather
// than an error: the type only affects display, never storage.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeCode, TypeMarkdown, TypeHTML, TypeSVG, TypeMermaid, TypeReact:
		return Type(s)
	default:
		return ""
	}
}

// Descriptor is the model's structured preamble for one generation
// request: what artifact to produce and how. It is parsed once per
// request and immutable afterwards.
//
// IncludeArtifactsID lists artifacts whose latest content should be
// supplied to the model as extra context.
type Descriptor struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Instructions       string   `json:"instructions"`
	Type               string   `json:"type"`
	IncludeArtifactsID []string `json:"includeArtifactsId"`
}

// Artifact is one immutable version of one artifact. Content holds the
// full textual payload for this version in compressed form.
type Artifact struct {
	ArtifactID  string    `json:"artifactId"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        Type      `json:"type"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Content     []byte    `json:"content"`
}

// BlockDetail is a lightweight snapshot embedded in a conversation
// message to record that the message produced version Version of the
// artifact. It is not a live pointer: the referenced version may later be
// unresolvable, in which case lookup falls back to the latest version.
type BlockDetail struct {
	ArtifactID  string    `json:"artifactId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Version     int       `json:"version"`
}

// Detail returns the reference snapshot for this version.
func (a Artifact) Detail() BlockDetail {
	return BlockDetail{
		ArtifactID:  a.ArtifactID,
		Name:        a.Name,
		Description: a.Description,
		CreatedAt:   a.CreatedAt,
		Version:     a.Version,
	}
}
