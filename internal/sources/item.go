package sources

import (
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// SourceType distinguishes video transcripts from web pages.
type SourceType string

// Source types.
const (
	SourceVideo SourceType = "video"
	SourceWeb   SourceType = "web"
)

// SourceItem is one ingested unit. It is built once by a Fetcher (or read
// back from its side file) and never modified afterwards.
type SourceItem struct {
	ID           string     `json:"id"`
	URI          string     `json:"uri"`
	SourceType   SourceType `json:"source_type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	PublishDate  string     `json:"publish_date"`
	ViewCount    int64      `json:"view_count"`
	LikeCount    int64      `json:"like_count"`
	DislikeCount int64      `json:"dislike_count"`
	CommentCount int64      `json:"comment_count"`
}

// Validate checks the invariants every stored item satisfies.
func (s SourceItem) Validate() error {
	const op = "sources.validate"
	if s.ID == "" {
		return ragerr.New(op, ragerr.ErrInvalidArgument, "source id is empty")
	}
	switch s.SourceType {
	case SourceVideo, SourceWeb:
	default:
		return ragerr.New(op, ragerr.ErrInvalidArgument, "source %q has unknown type %q", s.ID, s.SourceType)
	}
	if s.ViewCount < 0 || s.LikeCount < 0 || s.DislikeCount < 0 || s.CommentCount < 0 {
		return ragerr.New(op, ragerr.ErrInvalidArgument, "source %q has a negative count", s.ID)
	}
	return nil
}

// Fields returns the item keyed by its side-file names. Empty strings are
// omitted so that record builders can tell absent values from present ones.
func (s SourceItem) Fields() map[string]any {
	m := map[string]any{
		"view_count":    s.ViewCount,
		"like_count":    s.LikeCount,
		"dislike_count": s.DislikeCount,
		"comment_count": s.CommentCount,
	}
	for k, v := range map[string]string{
		"id":           s.ID,
		"uri":          s.URI,
		"source_type":  string(s.SourceType),
		"title":        s.Title,
		"description":  s.Description,
		"publish_date": s.PublishDate,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}
