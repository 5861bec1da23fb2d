package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
	"github.com/fyrsmithlabs/transcriptrag/internal/embeddings"
	"github.com/fyrsmithlabs/transcriptrag/internal/llm"
	"github.com/fyrsmithlabs/transcriptrag/internal/logging"
	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/telemetry"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// needs selects which dependencies a command builds.
type needs struct {
	service bool // embedder and retrieval service
	fetcher bool
	// llm is "required", "optional" or empty.
	llm string
	// watch prefers watch.dir over sources.transcript_dir.
	watch bool
}

// app holds the dependencies of one command invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	store    vectorstore.Store
	embedder embeddings.Provider
	side     *sources.Store
	svc      *retrieval.Service
}

// newApp loads configuration and builds what n asks for. Close must be
// called even when an error is returned.
func newApp(ctx context.Context, flags *globalFlags, n needs) (*app, error) {
	a := &app{logger: logging.Nop()}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return a, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	switch {
	case flags.transcriptDir != "":
		cfg.Sources.TranscriptDir = flags.transcriptDir
	case n.watch && cfg.Watch.Dir != "":
		cfg.Sources.TranscriptDir = cfg.Watch.Dir
	}
	a.cfg = cfg

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
	if err != nil {
		return a, err
	}
	a.tel = tel

	logCfg, err := logging.FromConfig(cfg.Logging, cfg.Observability)
	if err != nil {
		return a, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return a, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	zl := logger.Underlying()

	a.store, err = vectorstore.NewStore(cfg.VectorStore, zl.Named("vectorstore"))
	if err != nil {
		a.store = nil
		return a, err
	}
	a.side = sources.NewStore(cfg.Sources.TranscriptDir)

	if !n.service {
		return a, nil
	}

	if cfg.Embeddings.Provider == "fastembed" {
		if _, err := embeddings.EnsureONNXRuntime(ctx, zl); err != nil {
			return a, fmt.Errorf("onnx runtime unavailable (run 'transcriptrag init'): %w", err)
		}
	}
	a.embedder, err = embeddings.NewProvider(embeddings.ProviderConfigFrom(cfg.Embeddings), zl.Named("embeddings"))
	if err != nil {
		return a, err
	}

	opts := []retrieval.Option{retrieval.WithLogger(zl.Named("retrieval"))}
	if n.fetcher {
		router, err := sources.NewDefaultRouter(ctx, cfg.Sources, zl.Named("sources"))
		if err != nil {
			return a, err
		}
		opts = append(opts, retrieval.WithFetcher(router))
	}
	if n.llm != "" {
		client, err := llm.New(cfg.LLM, zl.Named("llm"))
		switch {
		case err == nil:
			opts = append(opts,
				retrieval.WithCompleter(client),
				retrieval.WithBudget(llm.NewBudget(cfg.LLM.Model, zl)),
			)
		case n.llm == "required":
			return a, err
		default:
			logger.Warn(ctx, "language model unavailable, ask is disabled", zap.Error(err))
		}
	}

	a.svc, err = retrieval.NewService(retrieval.ConfigFrom(cfg), a.store, a.embedder, a.side, opts...)
	return a, err
}

// Close releases everything newApp built, in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// withApp runs fn with a fully closed app afterwards.
func withApp(ctx context.Context, flags *globalFlags, n needs, fn func(*app) error) (err error) {
	a, err := newApp(ctx, flags, n)
	defer func() {
		err = errors.Join(err, a.Close(context.WithoutCancel(ctx)))
	}()
	if err != nil {
		return err
	}
	return fn(a)
}
