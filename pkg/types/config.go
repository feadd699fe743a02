package types

import "time"

// ProviderName identifies the model-calling backend.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
)

// ProviderConfig holds settings for the model-calling backend.
// Per prd004-providers R1.1-R1.4.
type ProviderConfig struct {
	// Provider selects the backend: anthropic or openai (OpenAI-compatible,
	// which covers OpenRouter and Ollama endpoints via BaseURL).
	Provider ProviderName `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ErrorMode selects how chunk-level failures surface.
// Per prd003-extraction R4.1.
type ErrorMode string

const (
	// ErrorModeReturn collects per-chunk errors into metadata; the run
	// always yields a (possibly partial) AnnotatedDocument.
	ErrorModeReturn ErrorMode = "return"

	// ErrorModeRaise fails the whole run on the first chunk error.
	ErrorModeRaise ErrorMode = "raise"
)

// BackoffPolicy selects how retry delays grow between attempts.
type BackoffPolicy string

const (
	BackoffExponential BackoffPolicy = "exponential"
	BackoffLinear      BackoffPolicy = "linear"
)

// ExtractionConfig holds all pipeline knobs. Zero values fall back to the
// defaults noted per field; Validate rejects invalid combinations before
// any chunk is dispatched (prd003-extraction R1.2).
type ExtractionConfig struct {
	ProviderConfig `yaml:",inline"`

	// ChunkSize is the window width in characters (default 4000).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// ChunkOverlap is the overlap between consecutive windows. Zero means
	// disjoint windows. Must be non-negative and smaller than ChunkSize.
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// MaxWorkers bounds how many chunks are processed concurrently
	// (default 10). Zero selects the default; it never means unbounded.
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// MaxRetries is the number of additional attempts after a transient
	// provider failure (default 2). Parse failures are never retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBackoff is the base delay between attempts (default 1s).
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// Backoff scales RetryBackoff per attempt: exponential doubles it,
	// linear multiplies it by the attempt number. Default exponential.
	Backoff BackoffPolicy `json:"backoff" yaml:"backoff"`

	// ErrorMode selects partial-failure semantics. Default "return".
	ErrorMode ErrorMode `json:"error_mode" yaml:"error_mode"`

	// Dedupe enables merging of duplicate detections from chunk overlap.
	Dedupe bool `json:"dedupe" yaml:"dedupe"`
}

// Defaults applied by WithDefaults.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
	DefaultMaxWorkers   = 10
	DefaultMaxRetries   = 2
	DefaultRetryBackoff = time.Second
)

// WithDefaults returns a copy with zero-value knobs replaced by defaults.
func (c ExtractionConfig) WithDefaults() ExtractionConfig {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Backoff == "" {
		c.Backoff = BackoffExponential
	}
	if c.ErrorMode == "" {
		c.ErrorMode = ErrorModeReturn
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c ExtractionConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return ConfigErrorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return ConfigErrorf("chunk_overlap must be non-negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return ConfigErrorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxWorkers < 0 {
		return ConfigErrorf("max_workers must be non-negative, got %d", c.MaxWorkers)
	}
	if c.MaxRetries < 0 {
		return ConfigErrorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.RetryBackoff < 0 {
		return ConfigErrorf("retry_backoff must be non-negative, got %v", c.RetryBackoff)
	}
	switch c.Backoff {
	case BackoffExponential, BackoffLinear:
	default:
		return ConfigErrorf("backoff must be %q or %q, got %q", BackoffExponential, BackoffLinear, c.Backoff)
	}
	switch c.ErrorMode {
	case ErrorModeReturn, ErrorModeRaise:
	default:
		return ConfigErrorf("error_mode must be %q or %q, got %q", ErrorModeReturn, ErrorModeRaise, c.ErrorMode)
	}
	return nil
}

// StoreConfig holds settings for the annotation store.
// Per prd005-annotation-store R1.2.
type StoreConfig struct {
	// AnnotationsDir is the base directory for stored runs (contains index/).
	AnnotationsDir string `json:"annotations_dir" yaml:"annotations_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}
