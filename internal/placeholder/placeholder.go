// Package placeholder implements revision back-references.
//
// When a new version of an artifact is generated, the model is told to
// reference unchanged sections of the previous version by token instead of
// re-emitting them. A token has the form "~A<digits>" (e.g. ~A3) and
// addresses one segment of the previous version's content, numbered in
// document order by codec.Segment.
//
// An unknown reference resolves to the empty string with a warning rather
// than surfacing the token in the output.
package placeholder

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/koopa0/canvas/internal/codec"
)

// Prefix begins every placeholder token. The demultiplexer's partial-token
// guard depends on it being short and fixed.
const Prefix = "~A"

// tokenPattern matches a complete placeholder token: tilde, letter A, one
// or more digits.
var tokenPattern = regexp.MustCompile(`~A\d+`)

// Context maps reuse keys ("A0", "A1", ...) to content segments of a
// previous artifact version. A Context is built fresh for each generation
// request and discarded when the request finishes.
type Context struct {
	keys     []string
	segments map[string]string
}

// BuildContext decomposes the previous version's content into segments and
// assigns sequential keys in document order. Empty content yields an empty
// context.
func BuildContext(previous string) Context {
	parts := codec.Segment(previous)
	ctx := Context{segments: make(map[string]string, len(parts))}
	for i, seg := range parts {
		key := "A" + strconv.Itoa(i)
		ctx.keys = append(ctx.keys, key)
		ctx.segments[key] = seg
	}
	return ctx
}

// Len reports the number of addressable segments.
func (c Context) Len() int { return len(c.keys) }

// Segment returns the content for a reuse key.
func (c Context) Segment(key string) (string, bool) {
	seg, ok := c.segments[key]
	return seg, ok
}

// Instructions serializes the context for inclusion in the outbound
// generation prompt, one keyed block per segment in document order.
func (c Context) Instructions() string {
	if len(c.keys) == 0 {
		return ""
	}
	var b strings.Builder
	for _, key := range c.keys {
		fmt.Fprintf(&b, "%s%s:\n%s\n\n", Prefix[:1], key, c.segments[key])
	}
	return b.String()
}

// Resolve rewrites every complete placeholder token in text. A token whose
// key exists in ctx is replaced by the segment's full content, surrounded
// by newlines to preserve block structure. A token with no matching key is
// deleted and logged as a warning; an invalid reference must never abort
// the stream.
//
// Text containing no tokens is returned unchanged. Callers only pass
// newly-arrived buffer content, so repeated calls never double-substitute.
func Resolve(text string, ctx Context, logger *slog.Logger) string {
	if !strings.Contains(text, Prefix) {
		return text
	}
	if logger == nil {
		logger = slog.Default()
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		key := token[1:] // strip the tilde: "~A3" -> "A3"
		seg, ok := ctx.segments[key]
		if !ok {
			logger.Warn("dropping unresolved placeholder", "token", token, "segments", len(ctx.keys))
			return ""
		}
		return "\n" + seg + "\n"
	})
}
