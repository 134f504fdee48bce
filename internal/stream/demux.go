// Package stream separates a model's incremental response into its two
// logical channels: artifact payload and conversational commentary.
//
// The response arrives as arbitrarily sized chunks, and the markers that
// switch between channels can straddle any chunk boundary. The
// demultiplexer withholds a short buffer tail whenever it could be the
// unterminated prefix of a marker or placeholder token, so no token is
// ever split and silently missed.
package stream

import "strings"

// Channel-switch markers embedded in the model's plain-text output.
// Everything outside a marker pair is artifact payload.
const (
	// StartMarker opens a commentary span.
	StartMarker = "<>"
	// EndMarker closes a commentary span.
	EndMarker = "</>"
)

// Output identifies which channel a flush belongs to.
type Output int

const (
	// Artifact is the structured payload channel (initial state).
	Artifact Output = iota
	// Commentary is the conversational text channel.
	Commentary
)

// String returns the channel name for logging.
func (o Output) String() string {
	if o == Commentary {
		return "commentary"
	}
	return "artifact"
}

// FlushFunc receives demultiplexed text. It is called synchronously from
// Write/Close, in source order, with non-empty text only. Returning an
// error aborts the current call.
type FlushFunc func(out Output, text string) error

// ResolveFunc rewrites placeholder tokens in a piece of buffered text
// before marker scanning. It is only ever handed text whose trailing
// partial tokens have been withheld, so it never sees a split token.
type ResolveFunc func(text string) string

// Demux is the two-state channel demultiplexer. It starts in the artifact
// state. Not safe for concurrent use; the read loop that feeds it is
// single-threaded by construction.
type Demux struct {
	flush   FlushFunc
	resolve ResolveFunc // nil = no placeholder resolution

	pending      strings.Builder
	inCommentary bool
}

// New creates a demultiplexer writing to flush. resolve may be nil when
// the request has no reuse context.
func New(flush FlushFunc, resolve ResolveFunc) *Demux {
	return &Demux{flush: flush, resolve: resolve}
}

// Write consumes one chunk. All text that can be safely attributed is
// flushed before Write returns; only a suffix that might be a split
// marker or placeholder token is retained for the next call.
func (d *Demux) Write(chunk string) error {
	d.pending.WriteString(chunk)
	buf := d.pending.String()

	hold := holdLen(buf)
	if hold >= len(buf) {
		return nil
	}

	d.pending.Reset()
	d.pending.WriteString(buf[len(buf)-hold:])
	return d.process(buf[:len(buf)-hold])
}

// Close flushes whatever remains. Complete tokens in the tail still
// count; a partial marker at true stream end is literal text, not
// protocol syntax.
func (d *Demux) Close() error {
	buf := d.pending.String()
	d.pending.Reset()
	if buf == "" {
		return nil
	}
	return d.process(buf)
}

// process resolves placeholders in text, then splits it at channel
// markers. A start marker seen while already in commentary (or an end
// marker while in the artifact state) is literal text: graceful
// degradation is preferred over strict validation so the stream always
// makes forward progress.
func (d *Demux) process(text string) error {
	if d.resolve != nil {
		text = d.resolve(text)
	}
	for {
		if !d.inCommentary {
			i := strings.Index(text, StartMarker)
			if i < 0 {
				return d.emit(Artifact, text)
			}
			if err := d.emit(Artifact, text[:i]); err != nil {
				return err
			}
			d.inCommentary = true
			text = text[i+len(StartMarker):]
			continue
		}
		i := strings.Index(text, EndMarker)
		if i < 0 {
			return d.emit(Commentary, text)
		}
		if err := d.emit(Commentary, text[:i]); err != nil {
			return err
		}
		d.inCommentary = false
		text = text[i+len(EndMarker):]
	}
}

func (d *Demux) emit(out Output, text string) error {
	if text == "" {
		return nil
	}
	return d.flush(out, text)
}

// holdLen returns how many trailing bytes of buf must be withheld because
// they could be the prefix of a marker or placeholder token completed by
// the next chunk. The marker window is max(len(StartMarker),
// len(EndMarker))-1 bytes; a trailing "~", "~A", or "~A<digits>" run is
// withheld in full because the digit run may still be growing.
func holdLen(buf string) int {
	hold := 0
	for l := min(len(buf), max(len(StartMarker), len(EndMarker))-1); l >= 1; l-- {
		tail := buf[len(buf)-l:]
		if (l < len(StartMarker) && strings.HasPrefix(StartMarker, tail)) ||
			(l < len(EndMarker) && strings.HasPrefix(EndMarker, tail)) {
			hold = l
			break
		}
	}
	if p := placeholderHold(buf); p > hold {
		hold = p
	}
	return hold
}

// placeholderHold reports the length of a trailing partial placeholder
// token ("~", "~A", or "~A" followed only by digits), or 0.
func placeholderHold(buf string) int {
	i := len(buf)
	for i > 0 && buf[i-1] >= '0' && buf[i-1] <= '9' {
		i--
	}
	if i < len(buf) {
		// Digits at the end only matter when introduced by "~A".
		if i >= 2 && buf[i-1] == 'A' && buf[i-2] == '~' {
			return len(buf) - i + 2
		}
		return 0
	}
	if strings.HasSuffix(buf, "~A") {
		return 2
	}
	if strings.HasSuffix(buf, "~") {
		return 1
	}
	return 0
}
