// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"
)

// Image backends.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Defaults.
const (
	DefaultGeminiImageModel    = "gemini-2.5-flash-image-preview"
	DefaultGeminiTextModel     = "gemini-2.5-flash"
	DefaultOpenAIImageModel    = "gpt-image-1"
	DefaultAnthropicModel      = "claude-sonnet-4-5"
	DefaultRequestsPerMinute   = 10
	DefaultAcceptThreshold     = 0.75
	DefaultDimensionFloor      = 6
	DefaultMaxAttempts         = 5
	DefaultTriggerPhrase       = "deep think"
	DefaultSimilarityCutoff    = 0.9
	DefaultScoreEpsilon        = 0.01
	DefaultReviewMaxTokens     = 2048
	DefaultModelRequestTimeout = 2 * time.Minute
)

// ImageConfig selects and configures the image generation backend.
type ImageConfig struct {
	// Backend is gemini (default) or openai.
	Backend string `yaml:"backend,omitempty"`

	// APIKey for the backend. Defaults to GEMINI_API_KEY or OPENAI_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the image model.
	Model string `yaml:"model,omitempty"`

	// RewriteModel is the text model that turns a brief into a detailed
	// generation prompt. Gemini only.
	RewriteModel string `yaml:"rewrite_model,omitempty"`

	// RewritePrompt enables prompt rewriting before first generation.
	// Default: true
	RewritePrompt *bool `yaml:"rewrite_prompt,omitempty"`

	// RequestsPerMinute throttles backend calls.
	// Default: 10
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`

	// Timeout bounds a single backend call.
	// Default: 2m
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values to ImageConfig.
func (c *ImageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendGemini
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Backend)
	}
	if c.Model == "" {
		switch c.Backend {
		case BackendOpenAI:
			c.Model = DefaultOpenAIImageModel
		default:
			c.Model = DefaultGeminiImageModel
		}
	}
	if c.RewriteModel == "" {
		c.RewriteModel = DefaultGeminiTextModel
	}
	if c.RewritePrompt == nil {
		c.RewritePrompt = BoolPtr(true)
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultModelRequestTimeout
	}
}

// Validate checks ImageConfig.
func (c *ImageConfig) Validate() error {
	switch c.Backend {
	case BackendGemini, BackendOpenAI:
	default:
		return fmt.Errorf("invalid backend %q (valid: gemini, openai)", c.Backend)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be non-negative")
	}
	return nil
}

// ReviewConfig selects the reviewer and the acceptance rubric.
type ReviewConfig struct {
	// Backend is gemini (default) or anthropic.
	Backend string `yaml:"backend,omitempty"`

	// APIKey for the backend. Defaults to GEMINI_API_KEY or ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the vision model used for review.
	Model string `yaml:"model,omitempty"`

	// MaxTokens bounds the review reply. Anthropic only.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// AcceptThreshold is the minimum normalized score in [0,1].
	// Default: 0.75
	AcceptThreshold float64 `yaml:"accept_threshold,omitempty"`

	// DimensionFloor is the minimum per-dimension score on the 0-10 scale.
	// Default: 6
	DimensionFloor float64 `yaml:"dimension_floor,omitempty"`

	// Dimensions overrides the default rubric dimensions.
	Dimensions []string `yaml:"dimensions,omitempty"`

	// RequestsPerMinute throttles backend calls.
	// Default: 10
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`

	// Timeout bounds a single backend call.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values to ReviewConfig.
func (c *ReviewConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendGemini
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Backend)
	}
	if c.Model == "" {
		switch c.Backend {
		case BackendAnthropic:
			c.Model = DefaultAnthropicModel
		default:
			c.Model = DefaultGeminiTextModel
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultReviewMaxTokens
	}
	if c.AcceptThreshold == 0 {
		c.AcceptThreshold = DefaultAcceptThreshold
	}
	if c.DimensionFloor == 0 {
		c.DimensionFloor = DefaultDimensionFloor
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultModelRequestTimeout
	}
}

// Validate checks ReviewConfig.
func (c *ReviewConfig) Validate() error {
	switch c.Backend {
	case BackendGemini, BackendAnthropic:
	default:
		return fmt.Errorf("invalid backend %q (valid: gemini, anthropic)", c.Backend)
	}
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		return fmt.Errorf("accept_threshold must be in (0, 1], got %v", c.AcceptThreshold)
	}
	if c.DimensionFloor < 0 || c.DimensionFloor > 10 {
		return fmt.Errorf("dimension_floor must be in [0, 10], got %v", c.DimensionFloor)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be non-negative")
	}
	return nil
}

// DeepThinkConfig bounds the generate/review loop.
type DeepThinkConfig struct {
	// MaxAttempts caps Generate steps per run.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// SimilarityCutoff is the feedback similarity at or above which two
	// verdicts count as equivalent.
	// Default: 0.9
	SimilarityCutoff float64 `yaml:"similarity_cutoff,omitempty"`

	// ScoreEpsilon is the score delta below which two verdicts count as
	// unchanged.
	// Default: 0.01
	ScoreEpsilon float64 `yaml:"score_epsilon,omitempty"`
}

// SetDefaults applies default values to DeepThinkConfig.
func (c *DeepThinkConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SimilarityCutoff == 0 {
		c.SimilarityCutoff = DefaultSimilarityCutoff
	}
	if c.ScoreEpsilon == 0 {
		c.ScoreEpsilon = DefaultScoreEpsilon
	}
}

// Validate checks DeepThinkConfig.
func (c *DeepThinkConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.SimilarityCutoff <= 0 || c.SimilarityCutoff > 1 {
		return fmt.Errorf("similarity_cutoff must be in (0, 1], got %v", c.SimilarityCutoff)
	}
	if c.ScoreEpsilon < 0 {
		return fmt.Errorf("score_epsilon must be non-negative")
	}
	return nil
}

// RouterConfig configures request routing.
type RouterConfig struct {
	// TriggerPhrase selects deep-think mode when present in the input.
	// Default: "deep think"
	TriggerPhrase string `yaml:"trigger_phrase,omitempty"`
}

// SetDefaults applies default values to RouterConfig.
func (c *RouterConfig) SetDefaults() {
	if c.TriggerPhrase == "" {
		c.TriggerPhrase = DefaultTriggerPhrase
	}
}

// Validate checks RouterConfig.
func (c *RouterConfig) Validate() error {
	return nil
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences b with a fallback.
func BoolValue(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
