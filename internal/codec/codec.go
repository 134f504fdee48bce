// Package codec provides the storage transform for artifact content:
// reversible zstd compression, and decomposition of markdown-style text
// into reuse-addressable segments.
//
// Artifact versions are kept compressed at rest; the codec is the only
// component that touches raw content bytes. Compression is lossless for
// any input, including text that itself contains marker or placeholder
// syntax.
package codec

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// encoder and decoder are reused across calls to avoid repeated
// initialization overhead. zstd.Encoder and zstd.Decoder are safe for
// concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress transforms text into its compact stored representation.
// Compress never fails; the empty string compresses to a valid empty frame.
func Compress(text string) []byte {
	return encoder.EncodeAll([]byte(text), nil)
}

// Decompress reverses Compress. For every string s,
// Decompress(Compress(s)) == s.
//
// The engine only ever decompresses its own prior output; the error
// return exists for corrupted external input (e.g. a hand-edited session
// export) and is not part of normal operation.
func Decompress(data []byte) (string, error) {
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress artifact content: %w", err)
	}
	return string(out), nil
}

// fence delimits code regions in artifact content.
const fence = "```"

// Segment splits text into an ordered sequence of reuse-addressable
// segments: each fenced code region (fence markers included, verbatim) is
// exactly one segment, and every maximal run of non-fenced text is exactly
// one segment. Concatenating the returned segments in order reproduces
// text exactly. Empty input yields no segments.
//
// An unclosed trailing fence runs to the end of the input as a single
// segment.
func Segment(text string) []string {
	var segments []string
	for len(text) > 0 {
		open := strings.Index(text, fence)
		if open < 0 {
			segments = append(segments, text)
			break
		}
		if open > 0 {
			segments = append(segments, text[:open])
		}
		rest := text[open+len(fence):]
		closing := strings.Index(rest, fence)
		if closing < 0 {
			segments = append(segments, text[open:])
			break
		}
		end := open + len(fence) + closing + len(fence)
		segments = append(segments, text[open:end])
		text = text[end:]
	}
	return segments
}
