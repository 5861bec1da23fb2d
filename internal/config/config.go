// Package config provides configuration loading for transcriptrag.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then a .env file, then environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete transcriptrag configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Sources       SourcesConfig       `koanf:"sources"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Query         QueryConfig         `koanf:"query"`
	Watch         WatchConfig         `koanf:"watch"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "local" (embedded, default) or "qdrant".
	Provider string       `koanf:"provider"`
	Local    LocalConfig  `koanf:"local"`
	Qdrant   QdrantConfig `koanf:"qdrant"`
}

// LocalConfig configures the embedded store. An empty path keeps data in
// memory only.
type LocalConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
	MaxMessageSize int    `koanf:"max_message_size"`
	ScrollPageSize int    `koanf:"scroll_page_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (local ONNX, default), "tei" or "openai".
	Provider          string   `koanf:"provider"`
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	APIKey            Secret   `koanf:"api_key"`
	Dimension         int      `koanf:"dimension"`
	CacheDir          string   `koanf:"cache_dir"`
	BatchSize         int      `koanf:"batch_size"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
}

// LLMConfig configures the completion model used by ask.
type LLMConfig struct {
	// Provider is "openai" (default) or "ollama".
	Provider      string   `koanf:"provider"`
	Model         string   `koanf:"model"`
	BaseURL       string   `koanf:"base_url"`
	APIKey        Secret   `koanf:"api_key"`
	Temperature   float64  `koanf:"temperature"`
	MaxTokens     int      `koanf:"max_tokens"`
	ContextTokens int      `koanf:"context_tokens"`
	Timeout       Duration `koanf:"timeout"`
}

// SourcesConfig configures transcript fetchers and side files.
type SourcesConfig struct {
	TranscriptDir     string        `koanf:"transcript_dir"`
	Timeout           Duration      `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	UserAgent         string        `koanf:"user_agent"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	YouTube           YouTubeConfig `koanf:"youtube"`
}

// YouTubeConfig configures the YouTube Data API and caption endpoint.
type YouTubeConfig struct {
	APIKey        Secret `koanf:"api_key"`
	Endpoint      string `koanf:"endpoint"`
	TranscriptURL string `koanf:"transcript_url"`
	Language      string `koanf:"language"`
}

// IngestConfig controls chunking and the ingestion worker pool.
type IngestConfig struct {
	ChunkSize            int    `koanf:"chunk_size"`
	ChunkOverlap         int    `koanf:"chunk_overlap"`
	EmbedBatchSize       int    `koanf:"embed_batch_size"`
	Workers              int    `koanf:"workers"`
	MetadataCollection   string `koanf:"metadata_collection"`
	TranscriptCollection string `koanf:"transcript_collection"`
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	DefaultK int `koanf:"default_k"`
	// MaxDistance drops results further than this. Zero disables the cut.
	MaxDistance float64 `koanf:"max_distance"`
}

// WatchConfig configures the transcript directory watcher.
type WatchConfig struct {
	Dir      string   `koanf:"dir"`
	Debounce Duration `koanf:"debounce"`
}

// LoggingConfig holds the logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	EnableMetrics   bool    `koanf:"enable_metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(2 * time.Minute),
		},
		VectorStore: VectorStoreConfig{
			Provider: "local",
			Local: LocalConfig{
				Path:     "~/.config/transcriptrag/vectorstore",
				Compress: true,
			},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				MaxMessageSize: 50 * 1024 * 1024,
				ScrollPageSize: 256,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:   "http://localhost:8080",
			Dimension: 384,
			BatchSize: 1,
			Timeout:   Duration(30 * time.Second),
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxTokens:     256,
			ContextTokens: 4096,
			Timeout:       Duration(60 * time.Second),
		},
		Sources: SourcesConfig{
			TranscriptDir:     "transcripts",
			Timeout:           Duration(30 * time.Second),
			RequestsPerSecond: 5,
			UserAgent:         "transcriptrag/1.0",
			MaxBodyBytes:      10 * 1024 * 1024,
			YouTube: YouTubeConfig{
				TranscriptURL: "https://video.google.com/timedtext",
				Language:      "en",
			},
		},
		Ingest: IngestConfig{
			ChunkSize:            1024,
			ChunkOverlap:         20,
			EmbedBatchSize:       1,
			Workers:              4,
			MetadataCollection:   "transcript_metadata",
			TranscriptCollection: "transcript_collection",
		},
		Query: QueryConfig{
			DefaultK: 4,
		},
		Watch: WatchConfig{
			Debounce: Duration(2 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Observability: ObservabilityConfig{
			ServiceName:  "transcriptrag",
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.VectorStore.Provider {
	case "local", "":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("qdrant host required for qdrant provider")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: local, qdrant)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("unsupported embeddings provider: %s (supported: fastembed, tei, openai)", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embeddings.Dimension)
	}

	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %s (supported: openai, ollama)", c.LLM.Provider)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MetadataCollection == "" || c.Ingest.TranscriptCollection == "" {
		return errors.New("collection names must not be empty")
	}
	if c.Ingest.MetadataCollection == c.Ingest.TranscriptCollection {
		return errors.New("metadata and transcript collections must differ")
	}

	if c.Query.DefaultK <= 0 {
		return fmt.Errorf("query default_k must be positive, got %d", c.Query.DefaultK)
	}
	if c.Query.MaxDistance < 0 {
		return fmt.Errorf("query max_distance must not be negative, got %g", c.Query.MaxDistance)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}
