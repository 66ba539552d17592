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
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini reviewer.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	BaseURL string
}

// Gemini reviews images with a Gemini vision model and schema-constrained
// JSON output.
type Gemini struct {
	client *genai.Client
	config GeminiConfig
	schema *genai.Schema
}

// NewGemini creates a Gemini reviewer.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	schema, err := AssessmentSchema()
	if err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		config: cfg,
		schema: toGenaiSchema(schema),
	}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Review scores the image.
func (g *Gemini) Review(ctx context.Context, req *Request) (*Verdict, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rubric := req.rubric()

	prompt, err := reviewPrompt(req, rubric, false)
	if err != nil {
		return nil, err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	mimeType := req.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: req.Image.Data}},
			{Text: prompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.2)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   g.schema,
	}

	genResp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini review failed: %w", err)
	}

	assessment, err := ParseAssessment(genResp.Text())
	if err != nil {
		return nil, err
	}
	return rubric.Judge(assessment), nil
}

var _ Reviewer = (*Gemini)(nil)
