package chunker

import "iter"

// Splitter carries a chunk size and overlap so callers configure them once.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters. Non-positive values are
// ignored.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap in characters. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter returns a Splitter using DefaultChunkSize and
// DefaultChunkOverlap unless overridden.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkSize returns the configured chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text with the configured parameters. An overlap that is not
// smaller than the chunk size is reported as ErrInvalidArgument.
func (s *Splitter) Split(text string) (iter.Seq[Chunk], error) {
	return Split(text, s.chunkSize, s.overlap)
}
