package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds a single request, including reading the response body.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "statement-review/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// CompletionConfig holds settings for the completion service client.
type CompletionConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey is the credential sent in the x-api-key header.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the service root; requests go to BaseURL + "/v1/messages".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIVersion is sent in the anthropic-version header.
	APIVersion string `json:"api_version" yaml:"api_version"`

	// MaxTokens is the fixed generation ceiling for every call. Zero selects
	// the default of 4000; negative values are rejected.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// DefaultModel is used for personas that do not name a model.
	DefaultModel string `json:"default_model" yaml:"default_model"`
}

// OCRConfig holds the generation controls forwarded to the OCR collaborator.
type OCRConfig struct {
	// Image is the container image that runs the OCR model.
	Image string `json:"image" yaml:"image"`

	// Model is the OCR model name or path inside the image.
	Model string `json:"model" yaml:"model"`

	// MaxNewTokens caps the tokens generated per page (default 4096).
	MaxNewTokens int `json:"max_new_tokens" yaml:"max_new_tokens"`

	// EOSToken overrides the tokenizer's end-of-sequence marker when set.
	EOSToken string `json:"eos_token,omitempty" yaml:"eos_token,omitempty"`

	Temperature       float64 `json:"temperature" yaml:"temperature"`
	TopP              float64 `json:"top_p" yaml:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty"`
}

// FailurePolicy selects how the orchestrator treats a failed specialist review.
type FailurePolicy string

const (
	// PolicyFailFast aborts the run on the first specialist failure.
	PolicyFailFast FailurePolicy = "fail-fast"
	// PolicyPartial aggregates whatever specialists succeeded, provided at
	// least ReviewConfig.MinSpecialists did.
	PolicyPartial FailurePolicy = "partial"
)

// ReviewConfig holds settings for the review orchestration stage.
type ReviewConfig struct {
	Policy FailurePolicy `json:"policy" yaml:"policy"`

	// MinSpecialists is the fewest successful specialist reviews the partial
	// policy accepts (default 2).
	MinSpecialists int `json:"min_specialists" yaml:"min_specialists"`

	// MaxRetries is the number of retries for transport failures (default 2).
	// Zero disables retrying.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// PanelFile replaces the built-in persona panel when set.
	PanelFile string `json:"panel_file,omitempty" yaml:"panel_file,omitempty"`
}

// ArchiveConfig holds settings for the run history store.
type ArchiveConfig struct {
	// Enabled records every successful run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir contains the history database (history.db).
	Dir string `json:"dir" yaml:"dir"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Completion CompletionConfig `json:"completion" yaml:"completion"`
	OCR        OCRConfig        `json:"ocr" yaml:"ocr"`
	Review     ReviewConfig     `json:"review" yaml:"review"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive"`
}
