package embed

import "time"

// Default Ollama settings
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout is the timeout for the initial health check
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize is the HTTP connection pool size
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model name (default: nomic-embed-text)
	Model string

	// Dimensions is the embedding dimension. Zero means auto-detect from a
	// probe embedding during the health check.
	Dimensions int

	// BatchSize is the number of texts per API request (default: 32)
	BatchSize int

	// Timeout is the per-batch request timeout (default: 60s)
	Timeout time.Duration

	// MaxRetries is the number of retry attempts per batch (default: 3)
	MaxRetries int

	// SkipHealthCheck skips the startup connectivity probe (testing only)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the default Ollama configuration
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// OllamaEmbedRequest is the request body for /api/embed
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// OllamaEmbedResponse is the response body from /api/embed
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaModelInfo describes one installed model
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// OllamaModelListResponse is the response body from /api/tags
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}
