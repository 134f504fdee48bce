package generate

import (
	"fmt"
	"strings"

	"github.com/koopa0/canvas/internal/placeholder"
	"github.com/koopa0/canvas/internal/stream"
)

// ruleset is prepended to every generation instruction. The engine's
// demultiplexer and placeholder resolver depend on the model following
// these rules; everything else in the prompt is per-request.
var ruleset = fmt.Sprintf(`You are producing an artifact. Follow these rules exactly:

1. Everything you output is the artifact itself, except conversational
   commentary, which you must wrap between %s and %s. Place commentary
   at the end of your output, after the artifact content.
2. All code must appear inside triple-backtick fenced blocks, and every
   fenced block must begin with a comment naming its file.
3. When revising an existing artifact, do not reproduce unchanged
   sections: reference them by their %s<n> key from the section list
   provided below.
4. The complete artifact must be reconstructible from your output: every
   section is either written out in full or referenced by key. Never
   summarize or elide content in any other way.`,
	stream.StartMarker, stream.EndMarker, placeholder.Prefix)

// IncludedArtifact is a prior artifact whose full content accompanies
// the request as cross-reference context.
type IncludedArtifact struct {
	ID      string
	Content string
}

// BuildInstructions assembles the outbound instruction text: the fixed
// ruleset, the descriptor's own instructions, any explicitly included
// artifacts, and - when revising - the reuse section list for the
// previous version.
func BuildInstructions(instructions string, included []IncludedArtifact, reuse placeholder.Context) string {
	var b strings.Builder
	b.WriteString(ruleset)
	b.WriteString("\n\nTask:\n")
	b.WriteString(instructions)

	for _, inc := range included {
		fmt.Fprintf(&b, "\n\nFor reference, the latest content of artifact %q:\n%s", inc.ID, inc.Content)
	}

	if reuse.Len() > 0 {
		fmt.Fprintf(&b, "\n\nYou are revising an existing artifact. Its current sections are listed "+
			"below; reference any section you leave unchanged by its key (for example %s0) "+
			"instead of writing it out again.\n\n%s",
			placeholder.Prefix, reuse.Instructions())
	}
	return b.String()
}
