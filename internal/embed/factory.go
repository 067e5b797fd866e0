package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based pseudo-embeddings (no backend required)
	ProviderStatic ProviderType = "static"
)

// FactoryConfig configures provider construction.
type FactoryConfig struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	CacheSize  int
}

// Provider is the embedder handed to the engine and differ: resilient
// (never fails a batch for backend reasons) and cached.
type Provider struct {
	Embedder
	resilient *ResilientEmbedder
}

// Degraded reports whether any embeddings came from the hash-based fallback.
func (p *Provider) Degraded() bool {
	return p.resilient.Degraded()
}

// NewProvider creates the embedding provider for a radar process.
//
// The RADAR_EMBEDDER environment variable overrides the configured provider
// ("ollama" or "static"). When the Ollama backend is unreachable at startup
// the provider starts degraded instead of failing: the engine keeps running
// on pseudo-embeddings rather than refusing to monitor.
func NewProvider(ctx context.Context, cfg FactoryConfig) *Provider {
	provider := cfg.Provider
	if env := os.Getenv("RADAR_EMBEDDER"); env != "" {
		provider = ProviderType(strings.ToLower(env))
	}

	var primary Embedder
	switch provider {
	case ProviderStatic:
		// Explicit opt-out of the backend; not a degradation.
		static := NewStaticEmbedderWithDimensions(cfg.Dimensions)
		resilient := NewResilientEmbedder(static, cfg.Dimensions)
		return &Provider{Embedder: NewCachedEmbedder(resilient, cfg.CacheSize), resilient: resilient}

	case ProviderOllama, "":
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			slog.Warn("primary embedding backend unavailable at startup",
				slog.String("provider", string(ProviderOllama)),
				slog.String("error", err.Error()))
			primary = nil
		} else {
			primary = ollama
		}

	default:
		slog.Warn("unknown embedding provider, using pseudo-embeddings",
			slog.String("provider", string(provider)))
		primary = nil
	}

	resilient := NewResilientEmbedder(primary, cfg.Dimensions)
	return &Provider{
		Embedder:  NewCachedEmbedder(resilient, cfg.CacheSize),
		resilient: resilient,
	}
}
