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

package imagegen

import (
	"fmt"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/observability"
)

// New builds the configured backend wrapped with rate limiting and
// instrumentation.
func New(cfg *config.ImageConfig, metrics *observability.Metrics) (Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("image config is required")
	}

	var (
		gen Generator
		err error
	)
	switch cfg.Backend {
	case config.BackendGemini, "":
		gen, err = NewGemini(GeminiConfig{
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			RewriteModel:  cfg.RewriteModel,
			RewritePrompt: config.BoolValue(cfg.RewritePrompt, true),
			Timeout:       cfg.Timeout,
		})
	case config.BackendOpenAI:
		gen, err = NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported image backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s image backend: %w", cfg.Backend, err)
	}

	return Instrumented(RateLimited(gen, cfg.RequestsPerMinute), metrics), nil
}
