// Package watcher ingests side files as they appear in the transcripts
// directory.
//
// Both files of a pair are written separately, so events are debounced
// per pair name and the pair is loaded once writes settle. A pair whose
// metadata is still missing when the timer fires is skipped; the metadata
// write that completes it schedules it again.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/logging"
	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Ingester indexes a side-file pair.
type Ingester interface {
	IngestStored(ctx context.Context, stored sources.Stored) retrieval.IngestReport
}

// Watcher watches one side-file directory.
type Watcher struct {
	store    *sources.Store
	ingester Ingester
	debounce time.Duration
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
	reports  chan retrieval.IngestReport

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// New watches store's directory, creating it if needed. A debounce of
// zero uses DefaultDebounce.
func New(store *sources.Store, ingester Ingester, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if store == nil || ingester == nil {
		return nil, fmt.Errorf("store and ingester are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", store.Dir(), err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, store.Dir(), err)
	}

	return &Watcher{
		store:    store,
		ingester: ingester,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		reports:  make(chan retrieval.IngestReport, 16),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Reports delivers the report of every ingest the watcher triggers. It is
// closed when Run returns. Reports are dropped when nobody reads them.
func (w *Watcher) Reports() <-chan retrieval.IngestReport {
	return w.reports
}

// Run processes events until ctx is done, then waits for in-flight
// ingests and closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching transcripts", zap.String("dir", w.store.Dir()), zap.Duration("debounce", w.debounce))
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if name, ok := sources.PairName(event.Name); ok {
				w.schedule(ctx, name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[name]; ok {
		t.Stop()
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() { w.fire(ctx, name) })
}

func (w *Watcher) fire(ctx context.Context, name string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, name)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	stored, err := w.store.Load(name)
	if err != nil {
		w.logger.Debug("side files incomplete, waiting", zap.String("name", name), zap.Error(err))
		return
	}

	ctx = logging.WithSourceID(ctx, stored.Item.ID)
	report := w.ingester.IngestStored(ctx, stored)
	select {
	case w.reports <- report:
	default:
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()

	w.wg.Wait()
	close(w.reports)
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}
