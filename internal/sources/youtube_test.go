package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		identifier string
		want       string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			got, err := VideoID(tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVideoID_Invalid(t *testing.T) {
	for _, identifier := range []string{
		"",
		"https://www.youtube.com/",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/channel/UC123",
		"https://example.com/watch?v=dQw4w9WgXcQ",
	} {
		t.Run(identifier, func(t *testing.T) {
			_, err := VideoID(identifier)
			assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)
		})
	}
}

const videoJSON = `{
  "kind": "youtube#videoListResponse",
  "items": [{
    "id": "dQw4w9WgXcQ",
    "snippet": {
      "title": "Apple Orchard Tour",
      "description": "red apples are sweet",
      "publishedAt": "2023-05-01T12:00:00Z"
    },
    "statistics": {
      "viewCount": "1500",
      "likeCount": "120",
      "dislikeCount": "3",
      "commentCount": "45"
    }
  }]
}`

const captionsXML = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
  <text start="0.0" dur="1.2">Welcome to the orchard</text>
  <text start="1.2" dur="2.0">it&amp;#39;s harvest   time</text>
  <text start="3.2" dur="0.5"></text>
</transcript>`

type youtubeStub struct {
	videos   string
	captions string
	status   int
}

func (s youtubeStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
		if s.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.videos))
	})
	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
		_, _ = w.Write([]byte(s.captions))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestYouTubeFetcher(t *testing.T, srv *httptest.Server) *YouTubeFetcher {
	t.Helper()
	f, err := NewYouTubeFetcher(context.Background(), YouTubeConfig{
		APIKey:        "yt-test-key",
		Endpoint:      srv.URL + "/",
		TranscriptURL: srv.URL + "/timedtext",
	}, nil)
	require.NoError(t, err)
	return f
}

func TestYouTubeFetcher_Fetch(t *testing.T) {
	srv := youtubeStub{videos: videoJSON, captions: captionsXML}.server(t)
	f := newTestYouTubeFetcher(t, srv)

	item, text, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, SourceItem{
		ID:           "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		URI:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		SourceType:   SourceVideo,
		Title:        "Apple Orchard Tour",
		Description:  "red apples are sweet",
		PublishDate:  "2023-05-01T12:00:00Z",
		ViewCount:    1500,
		LikeCount:    120,
		DislikeCount: 3,
		CommentCount: 45,
	}, item)
	assert.Equal(t, "Welcome to the orchard it's harvest time", text)
}

func TestYouTubeFetcher_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stub     youtubeStub
		wantKind error
	}{
		{"unknown video", youtubeStub{videos: `{"items": []}`, captions: captionsXML}, ragerr.ErrSourceNotFound},
		{"no captions", youtubeStub{videos: videoJSON, captions: ""}, ragerr.ErrSourceNotFound},
		{"empty captions", youtubeStub{videos: videoJSON, captions: `<transcript><text start="0" dur="1"> </text></transcript>`}, ragerr.ErrSourceNotFound},
		{"garbled captions", youtubeStub{videos: videoJSON, captions: "<html>oops"}, ragerr.ErrSourceUnavailable},
		{"quota exceeded", youtubeStub{status: http.StatusForbidden}, ragerr.ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestYouTubeFetcher(t, tt.stub.server(t))
			_, _, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, ragerr.KindOf(err))
		})
	}
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, int64(7), clampCount(7))
	assert.Equal(t, int64(9223372036854775807), clampCount(1<<63+5))
}
