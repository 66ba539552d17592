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

package review

import (
	"fmt"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/observability"
)

// New builds the configured reviewer wrapped with rate limiting and
// instrumentation.
func New(cfg *config.ReviewConfig, metrics *observability.Metrics) (Reviewer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("review config is required")
	}

	var (
		r   Reviewer
		err error
	)
	switch cfg.Backend {
	case config.BackendGemini, "":
		r, err = NewGemini(GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case config.BackendAnthropic:
		r, err = NewAnthropic(AnthropicConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported review backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s reviewer: %w", cfg.Backend, err)
	}

	return Instrumented(RateLimited(r, cfg.RequestsPerMinute), metrics), nil
}

// RubricFromConfig builds the rubric from review settings.
func RubricFromConfig(cfg *config.ReviewConfig) Rubric {
	rubric := DefaultRubric()
	if cfg == nil {
		return rubric
	}
	if len(cfg.Dimensions) > 0 {
		rubric.Dimensions = append([]string(nil), cfg.Dimensions...)
	}
	if cfg.AcceptThreshold > 0 {
		rubric.AcceptThreshold = cfg.AcceptThreshold
	}
	if cfg.DimensionFloor > 0 {
		rubric.DimensionFloor = cfg.DimensionFloor
	}
	return rubric
}
