package sources

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// WebConfig configures WebFetcher.
type WebConfig struct {
	UserAgent    string
	MaxBodyBytes int64
	HTTPClient   *http.Client
	Limiter      *RateLimiter
}

// WebFetcher treats the visible text of an HTML page as its transcript.
type WebFetcher struct {
	cfg    WebConfig
	logger *zap.Logger
}

// NewWebFetcher creates a WebFetcher.
func NewWebFetcher(cfg WebConfig, logger *zap.Logger) *WebFetcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebFetcher{cfg: cfg, logger: logger}
}

// Fetch downloads identifier and extracts title, meta description and text.
// The item id and uri are the URL as given.
func (f *WebFetcher) Fetch(ctx context.Context, identifier string) (SourceItem, string, error) {
	const op = "sources.web.fetch"
	u, err := parseIdentifier(identifier)
	if err != nil {
		return SourceItem{}, "", err
	}
	identifier = u.String()

	resp, err := get(ctx, op, f.cfg.HTTPClient, f.cfg.Limiter, identifier, f.cfg.UserAgent)
	if err != nil {
		return SourceItem{}, "", err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return SourceItem{}, "", ragerr.New(op, ragerr.ErrSourceNotFound, "%s has unsupported content type %q", identifier, ct)
	}

	body, err := readLimited(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		return SourceItem{}, "", ragerr.Wrap(op, ragerr.ErrSourceUnavailable, err)
	}
	page := string(body)

	text := page
	title := ""
	description := ""
	if !strings.HasPrefix(ct, "text/plain") {
		text = pageText(page)
		title = pageTitle(page)
		description = metaDescription(page)
	}
	if strings.TrimSpace(text) == "" {
		return SourceItem{}, "", ragerr.New(op, ragerr.ErrSourceNotFound, "%s has no text content", identifier)
	}
	if title == "" {
		title = strings.Trim(u.Host+u.Path, "/")
	}

	item := SourceItem{
		ID:          identifier,
		URI:         identifier,
		SourceType:  SourceWeb,
		Title:       title,
		Description: description,
	}
	f.logger.Debug("fetched web page",
		zap.String("uri", identifier),
		zap.String("title", title),
		zap.Int("chars", len(text)),
	)
	return item, text, nil
}
