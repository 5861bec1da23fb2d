package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// guarded bounds every call to the wrapped provider and classifies its
// failures.
type guarded struct {
	inner   Provider
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

func newGuarded(p Provider, cfg ProviderConfig, logger *zap.Logger) *guarded {
	g := &guarded{
		inner:   p,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		metrics: NewMetrics(logger),
		logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return g
}

func (g *guarded) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embeddings.embed_documents"
	if len(texts) == 0 {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "texts cannot be empty")
	}

	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	defer g.metrics.Start(ctx, g.model, "embed_documents")()

	var vectors [][]float32
	err := g.wait(ctx)
	if err == nil {
		vectors, err = g.inner.EmbedDocuments(ctx, texts)
	}
	err = classify(op, err)
	g.metrics.RecordGeneration(ctx, g.model, "embed_documents", time.Since(start), len(texts), err)
	if err != nil {
		g.logger.Debug("embedding failed", zap.String("op", op), zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

func (g *guarded) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	const op = "embeddings.embed_query"
	if text == "" {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "text cannot be empty")
	}

	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	defer g.metrics.Start(ctx, g.model, "embed_query")()

	var vector []float32
	err := g.wait(ctx)
	if err == nil {
		vector, err = g.inner.EmbedQuery(ctx, text)
	}
	err = classify(op, err)
	g.metrics.RecordGeneration(ctx, g.model, "embed_query", time.Since(start), 1, err)
	if err != nil {
		g.logger.Debug("embedding failed", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	return vector, nil
}

func (g *guarded) Dimension() int {
	return g.inner.Dimension()
}

func (g *guarded) Close() error {
	return g.inner.Close()
}

func (g *guarded) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *guarded) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses up front when the next token lands after the deadline.
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

// classify maps provider errors onto pipeline kinds. Already classified
// errors pass through unchanged.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case ragerr.KindOf(err) != nil:
		return err
	case errors.Is(err, ErrEmptyInput):
		return ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return ragerr.Wrap(op, ragerr.ErrEmbeddingService, err)
	case isTimeout(err):
		return ragerr.Wrap(op, ragerr.ErrTimeout, err)
	default:
		return ragerr.Wrap(op, ragerr.ErrEmbeddingService, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// errorKind names the ragerr kind of err for metric labels.
func errorKind(err error) string {
	if kind := ragerr.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unknown"
}
