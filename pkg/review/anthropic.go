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
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicSystemPrompt = "You review marketing images and reply only with JSON."

// AnthropicConfig configures the Claude reviewer.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Timeout   time.Duration
}

// Anthropic reviews images with a Claude vision model.
type Anthropic struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropic creates a Claude reviewer.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Anthropic{client: anthropic.NewClient(opts...), config: cfg}, nil
}

// Name returns "anthropic".
func (a *Anthropic) Name() string {
	return "anthropic"
}

// Review scores the image.
func (a *Anthropic) Review(ctx context.Context, req *Request) (*Verdict, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rubric := req.rubric()

	prompt, err := reviewPrompt(req, rubric, true)
	if err != nil {
		return nil, err
	}

	mimeType := req.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.config.Model),
		MaxTokens:   int64(a.config.MaxTokens),
		Temperature: anthropic.Float(0.2),
		System:      []anthropic.TextBlockParam{{Text: anthropicSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(req.Image.Data)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic review failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	assessment, err := ParseAssessment(text.String())
	if err != nil {
		return nil, err
	}
	return rubric.Judge(assessment), nil
}

var _ Reviewer = (*Anthropic)(nil)
