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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini image backend.
type GeminiConfig struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the image model, e.g. "gemini-2.5-flash-image-preview".
	Model string

	// RewriteModel expands briefs into detailed prompts before generation.
	RewriteModel string

	// RewritePrompt enables the rewrite step for fresh generations.
	RewritePrompt bool

	// Timeout bounds each backend call. Zero means no extra bound.
	Timeout time.Duration

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// geminiAspectRatios are the ratios the image config accepts. Others are
// only described in the prompt.
var geminiAspectRatios = map[string]bool{
	"1:1": true, "2:3": true, "3:2": true, "3:4": true,
	"4:3": true, "9:16": true, "16:9": true, "21:9": true,
}

// Gemini generates images with Gemini image models.
type Gemini struct {
	client *genai.Client
	config GeminiConfig
}

// NewGemini creates a Gemini generator.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-image-preview"
	}
	if cfg.RewriteModel == "" {
		cfg.RewriteModel = "gemini-2.5-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	// Use context.Background() for initialization - constructors shouldn't require context
	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, config: cfg}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Generate creates or edits an image.
//
// Fresh generations are optionally preceded by a prompt rewrite through the
// text model. Edits send the prior image, the instruction and the reference
// in that order.
func (g *Gemini) Generate(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	result := &Result{}
	var parts []*genai.Part

	if req.IsEdit() {
		parts = append(parts, imagePart(req.Prior), &genai.Part{Text: editInstruction(req)})
	} else {
		prompt := directPrompt(req)
		if g.config.RewritePrompt {
			rewritten, err := g.rewrite(ctx, req)
			if err != nil {
				return nil, err
			}
			prompt = rewritten
			result.RewrittenPrompt = rewritten
		}
		parts = append(parts, &genai.Part{Text: prompt})
	}
	if req.Reference != nil {
		parts = append(parts, imagePart(req.Reference))
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if !req.IsEdit() && geminiAspectRatios[req.aspectRatio()] {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.aspectRatio()}
	}

	genResp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}

	img, text := extractImage(genResp)
	result.Text = text
	if img == nil {
		slog.Debug("Gemini returned no image", "model", g.config.Model, "text", text)
		return nil, ErrNoImage
	}
	result.Image = img
	return result, nil
}

// rewrite turns a short brief into a detailed generation prompt.
func (g *Gemini) rewrite(ctx context.Context, req *Request) (string, error) {
	instruction, err := rewriteInstruction(req)
	if err != nil {
		return "", err
	}

	genResp, err := g.client.Models.GenerateContent(ctx, g.config.RewriteModel, genai.Text(instruction), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini prompt rewrite failed: %w", err)
	}

	rewritten := strings.TrimSpace(genResp.Text())
	if rewritten == "" {
		return directPrompt(req), nil
	}
	slog.Debug("Rewrote image prompt", "model", g.config.RewriteModel, "prompt", rewritten)
	return rewritten, nil
}

func imagePart(img *Image) *genai.Part {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     img.Data,
		},
	}
}

// extractImage returns the first inline image of the first candidate and
// the concatenated text parts.
func extractImage(genResp *genai.GenerateContentResponse) (*Image, string) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, ""
	}
	candidate := genResp.Candidates[0]
	if candidate.Content == nil {
		return nil, ""
	}

	var img *Image
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if img == nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			img = &Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}
		}
	}
	return img, strings.TrimSpace(text.String())
}

var _ Generator = (*Gemini)(nil)
