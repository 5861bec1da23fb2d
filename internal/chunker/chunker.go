// Package chunker splits transcript text into overlapping fixed-size chunks.
//
// Offsets are measured in characters (Unicode code points), never bytes, so
// every chunk is valid UTF-8 and can be mapped back onto the stored source
// text with Slice.
package chunker

import (
	"iter"
	"unicode/utf8"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1024

// DefaultChunkOverlap is the default number of characters shared by
// consecutive chunks.
const DefaultChunkOverlap = 20

// Chunk is one contiguous piece of the source text.
type Chunk struct {
	Index int    // position in the sequence, starting at 0
	Text  string // text[Start:End] in characters
	Start int    // inclusive character offset
	End   int    // exclusive character offset
}

// Split returns the chunks of text as a lazy sequence.
//
// Chunk i starts at i*(maxChunkSize-overlap) and is at most maxChunkSize
// characters long. The last chunk always ends at the length of text.
// Ranging over the sequence again yields the same chunks.
func Split(text string, maxChunkSize, overlap int) (iter.Seq[Chunk], error) {
	if maxChunkSize <= 0 {
		return nil, ragerr.New("chunker.split", ragerr.ErrInvalidArgument,
			"max chunk size must be positive, got %d", maxChunkSize)
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, ragerr.New("chunker.split", ragerr.ErrInvalidArgument,
			"overlap must be in [0, %d), got %d", maxChunkSize, overlap)
	}

	offsets := runeOffsets(text)
	length := len(offsets) - 1
	step := maxChunkSize - overlap

	return func(yield func(Chunk) bool) {
		for i, start := 0, 0; start < length; i, start = i+1, start+step {
			end := min(start+maxChunkSize, length)
			c := Chunk{
				Index: i,
				Text:  text[offsets[start]:offsets[end]],
				Start: start,
				End:   end,
			}
			if !yield(c) || end == length {
				return
			}
		}
	}, nil
}

// Collect drains a chunk sequence into a slice.
func Collect(seq iter.Seq[Chunk]) []Chunk {
	var out []Chunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}

// Len returns the length of text in characters.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}

// Slice returns text[start:end] with offsets in characters.
func Slice(text string, start, end int) (string, error) {
	offsets := runeOffsets(text)
	length := len(offsets) - 1
	if start < 0 || end > length || start >= end {
		return "", ragerr.New("chunker.slice", ragerr.ErrInvalidArgument,
			"range [%d,%d) outside text of length %d", start, end, length)
	}
	return text[offsets[start]:offsets[end]], nil
}

// runeOffsets maps character positions to byte positions. The returned
// slice has one entry per character plus a final entry equal to len(text).
func runeOffsets(text string) []int {
	n := utf8.RuneCountInString(text)
	offsets := make([]int, 0, n+1)
	if n == len(text) {
		for i := 0; i <= n; i++ {
			offsets = append(offsets, i)
		}
		return offsets
	}
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
