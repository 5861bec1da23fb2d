package sources

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// YouTubeConfig configures YouTubeFetcher.
type YouTubeConfig struct {
	// APIKey authenticates YouTube Data API v3 calls.
	APIKey string
	// Endpoint overrides the Data API base URL.
	Endpoint string
	// TranscriptURL is the timedtext caption endpoint.
	TranscriptURL string
	// Language is the caption language, default "en".
	Language   string
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *RateLimiter
}

// YouTubeFetcher reads video metadata from the Data API and the caption
// track from the timedtext endpoint.
type YouTubeFetcher struct {
	svc    *youtube.Service
	cfg    YouTubeConfig
	logger *zap.Logger
}

// NewYouTubeFetcher creates a YouTubeFetcher. Without an API key the
// fetcher is still created; Fetch then fails with ErrSourceUnavailable.
func NewYouTubeFetcher(ctx context.Context, cfg YouTubeConfig, logger *zap.Logger) (*YouTubeFetcher, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(0)
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.TranscriptURL == "" {
		cfg.TranscriptURL = "https://video.google.com/timedtext"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &YouTubeFetcher{cfg: cfg, logger: logger}
	if cfg.APIKey == "" {
		return f, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(cfg.UserAgent))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	f.svc = svc
	return f, nil
}

// Fetch implements Fetcher. The item id is the canonical watch URL.
func (f *YouTubeFetcher) Fetch(ctx context.Context, identifier string) (SourceItem, string, error) {
	const op = "sources.youtube.fetch"
	videoID, err := VideoID(identifier)
	if err != nil {
		return SourceItem{}, "", err
	}
	if f.svc == nil {
		return SourceItem{}, "", ragerr.New(op, ragerr.ErrSourceUnavailable, "youtube api key not configured (set YOUTUBE_API_KEY)")
	}

	item, err := f.metadata(ctx, videoID)
	if err != nil {
		return SourceItem{}, "", err
	}
	text, err := f.transcript(ctx, videoID)
	if err != nil {
		return SourceItem{}, "", err
	}

	f.logger.Debug("fetched youtube video",
		zap.String("video_id", videoID),
		zap.String("title", item.Title),
		zap.Int("chars", len(text)),
	)
	return item, text, nil
}

func (f *YouTubeFetcher) metadata(ctx context.Context, videoID string) (SourceItem, error) {
	const op = "sources.youtube.metadata"
	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return SourceItem{}, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}

	resp, err := f.svc.Videos.List([]string{"snippet", "statistics"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return SourceItem{}, f.apiError(op, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return SourceItem{}, ragerr.New(op, ragerr.ErrSourceNotFound, "video %s not found", videoID)
	}

	v := resp.Items[0]
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	item := SourceItem{
		ID:          watchURL,
		URI:         watchURL,
		SourceType:  SourceVideo,
		Title:       v.Snippet.Title,
		Description: v.Snippet.Description,
		PublishDate: v.Snippet.PublishedAt,
	}
	if s := v.Statistics; s != nil {
		item.ViewCount = clampCount(s.ViewCount)
		item.LikeCount = clampCount(s.LikeCount)
		item.DislikeCount = clampCount(s.DislikeCount)
		item.CommentCount = clampCount(s.CommentCount)
	}
	return item, nil
}

func (f *YouTubeFetcher) apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			f.cfg.Limiter.Backoff(retryAfter(gerr.Header.Get("Retry-After")))
		}
		return ragerr.Wrap(op, statusKind(gerr.Code), err)
	}
	return ragerr.Wrap(op, ragerr.ErrSourceUnavailable, timeoutCause(err))
}

// timedText is the timedtext XML document.
type timedText struct {
	XMLName xml.Name `xml:"transcript"`
	Lines   []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

func (f *YouTubeFetcher) transcript(ctx context.Context, videoID string) (string, error) {
	const op = "sources.youtube.transcript"
	u, err := url.Parse(f.cfg.TranscriptURL)
	if err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	q := u.Query()
	q.Set("lang", f.cfg.Language)
	q.Set("v", videoID)
	u.RawQuery = q.Encode()

	resp, err := get(ctx, op, f.cfg.HTTPClient, f.cfg.Limiter, u.String(), f.cfg.UserAgent)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, 0)
	if err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ragerr.New(op, ragerr.ErrSourceNotFound, "video %s has no %s transcript", videoID, f.cfg.Language)
	}

	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, fmt.Errorf("decoding transcript: %w", err))
	}

	lines := make([]string, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		// Caption text is HTML-escaped a second time inside the XML.
		if t := collapse(html.UnescapeString(l.Text)); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		return "", ragerr.New(op, ragerr.ErrSourceNotFound, "video %s has an empty transcript", videoID)
	}
	return strings.Join(lines, " "), nil
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the 11-character video id from watch?v=, youtu.be/,
// shorts/, embed/ and live/ URLs, or accepts a bare id.
func VideoID(identifier string) (string, error) {
	const op = "sources.youtube.video_id"
	identifier = strings.TrimSpace(identifier)
	if videoIDPattern.MatchString(identifier) {
		return identifier, nil
	}

	u, err := parseIdentifier(identifier)
	if err != nil {
		return "", err
	}
	if !isYouTubeHost(u.Hostname()) {
		return "", ragerr.New(op, ragerr.ErrInvalidArgument, "%q is not a youtube URL", identifier)
	}

	var id string
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") == "youtu.be":
		id = segments[0]
	case u.Query().Get("v") != "":
		id = u.Query().Get("v")
	case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
		id = segments[1]
	}
	if !videoIDPattern.MatchString(id) {
		return "", ragerr.New(op, ragerr.ErrInvalidArgument, "no video id in %q", identifier)
	}
	return id, nil
}

func clampCount(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}
