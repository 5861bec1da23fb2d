package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
)

// NewStore creates the Store selected by cfg.Provider:
//   - "local" (default): embedded LocalStore, persisted with chromem-go
//   - "qdrant": QdrantStore, requires a running Qdrant server
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStore(LocalConfig{
			Path:     cfg.Local.Path,
			Compress: cfg.Local.Compress,
		}, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			MaxMessageSize: cfg.Qdrant.MaxMessageSize,
			ScrollPageSize: uint32(max(cfg.Qdrant.ScrollPageSize, 0)),
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: local, qdrant)", cfg.Provider)
	}
}
