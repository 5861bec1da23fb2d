package sources

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// Fetcher resolves an identifier into a SourceItem and its raw text.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string) (SourceItem, string, error)
}

// Router sends video-platform URLs to the YouTube fetcher and everything
// else to the web fetcher.
type Router struct {
	youtube Fetcher
	web     Fetcher
}

// NewRouter pairs the two fetchers.
func NewRouter(youtube, web Fetcher) *Router {
	return &Router{youtube: youtube, web: web}
}

// NewDefaultRouter builds both fetchers from cfg. They share one rate
// limiter and HTTP client.
func NewDefaultRouter(ctx context.Context, cfg config.SourcesConfig, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout.Duration()}
	limiter := NewRateLimiter(cfg.RequestsPerSecond)

	yt, err := NewYouTubeFetcher(ctx, YouTubeConfig{
		APIKey:        cfg.YouTube.APIKey.Value(),
		Endpoint:      cfg.YouTube.Endpoint,
		TranscriptURL: cfg.YouTube.TranscriptURL,
		Language:      cfg.YouTube.Language,
		UserAgent:     cfg.UserAgent,
		HTTPClient:    client,
		Limiter:       limiter,
	}, logger)
	if err != nil {
		return nil, err
	}
	web := NewWebFetcher(WebConfig{
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxBodyBytes,
		HTTPClient:   client,
		Limiter:      limiter,
	}, logger)
	return NewRouter(yt, web), nil
}

// Route returns the fetcher responsible for identifier.
func (r *Router) Route(identifier string) (Fetcher, error) {
	u, err := parseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if isYouTubeHost(u.Hostname()) {
		return r.youtube, nil
	}
	return r.web, nil
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, identifier string) (SourceItem, string, error) {
	f, err := r.Route(identifier)
	if err != nil {
		return SourceItem{}, "", err
	}
	return f.Fetch(ctx, identifier)
}

func parseIdentifier(identifier string) (*url.URL, error) {
	const op = "sources.route"
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "identifier is empty")
	}
	u, err := url.Parse(identifier)
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "identifier %q is not an http(s) URL", identifier)
	}
	return u, nil
}

func isYouTubeHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "youtube-nocookie.com"
}

// get performs a rate-limited GET and classifies the outcome. The caller
// closes the body of a successful response.
func get(ctx context.Context, op string, client *http.Client, limiter *RateLimiter, rawURL, userAgent string) (*http.Response, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrSourceUnavailable, timeoutCause(err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		limiter.Backoff(retryAfter(resp.Header.Get("Retry-After")))
	}
	return nil, ragerr.New(op, statusKind(resp.StatusCode), "GET %s: %s", rawURL, resp.Status)
}

// statusKind classifies an unsuccessful HTTP status.
func statusKind(code int) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return ragerr.ErrSourceNotFound
	case code == http.StatusTooManyRequests || code == http.StatusUnauthorized ||
		code == http.StatusForbidden || code >= 500:
		return ragerr.ErrSourceUnavailable
	default:
		return ragerr.ErrSourceNotFound
	}
}

// timeoutCause marks client timeouts as deadline errors so ragerr reports
// them as ErrTimeout.
func timeoutCause(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}

// readLimited reads at most limit bytes of body; limit <= 0 means 10MB.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 10 << 20
	}
	return io.ReadAll(io.LimitReader(body, limit))
}

