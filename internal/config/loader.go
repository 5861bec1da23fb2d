package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override. Nested keys are
	// separated by a double underscore.
	EnvPrefix = "TRANSCRIPTRAG_"
)

// legacyEnv maps environment variables understood by earlier releases onto
// configuration keys. They apply only when the key is not set otherwise.
var legacyEnv = []struct {
	name string
	keys []string
}{
	{"MILVUS_HOST", []string{"vectorstore.qdrant.host"}},
	{"MILVUS_PORT", []string{"vectorstore.qdrant.port"}},
	{"YOUTUBE_API_KEY", []string{"sources.youtube.api_key"}},
	{"OPENAI_API_KEY", []string{"llm.api_key", "embeddings.api_key"}},
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (TRANSCRIPTRAG_INGEST__CHUNK_SIZE, ...)
//  2. Variables from envFiles (default ".env"); they never override the
//     process environment
//  3. Legacy variables (MILVUS_HOST, MILVUS_PORT, YOUTUBE_API_KEY,
//     OPENAI_API_KEY)
//  4. YAML config file (configPath, default ~/.config/transcriptrag/config.yaml)
//  5. Built-in defaults
//
// A missing config file is not an error. An existing one must be a regular
// file of at most 1MB that is not writable by group or others.
//
// # Environment Variable Mapping
//
//	TRANSCRIPTRAG_SERVER__HTTP_PORT          -> server.http_port
//	TRANSCRIPTRAG_VECTORSTORE__QDRANT__HOST  -> vectorstore.qdrant.host
//	TRANSCRIPTRAG_INGEST__CHUNK_SIZE         -> ingest.chunk_size
func Load(configPath string, envFiles ...string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	explicitProvider := k.Exists("vectorstore.provider") || os.Getenv(EnvPrefix+"VECTORSTORE__PROVIDER") != ""
	for _, legacy := range legacyEnv {
		value := os.Getenv(legacy.name)
		if value == "" {
			continue
		}
		for _, key := range legacy.keys {
			if !k.Exists(key) {
				if err := k.Set(key, value); err != nil {
					return nil, fmt.Errorf("applying %s: %w", legacy.name, err)
				}
			}
		}
	}
	// MILVUS_HOST always pointed at a client-server store.
	if os.Getenv("MILVUS_HOST") != "" && !explicitProvider {
		if err := k.Set("vectorstore.provider", "qdrant"); err != nil {
			return nil, fmt.Errorf("applying MILVUS_HOST: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/transcriptrag/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "transcriptrag", "config.yaml"), nil
}

// envKey maps TRANSCRIPTRAG_SECTION__FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// readConfigFile returns nil content when path does not exist.
func readConfigFile(path string) ([]byte, error) {
	// Open once and validate the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large (max %d bytes)", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigFileProperties checks type, permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config file is not a regular file: %s", info.Mode())
	}

	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}
