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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures the OpenAI image backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAI generates images with the OpenAI Images API.
type OpenAI struct {
	client openai.Client
	config OpenAIConfig
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
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

	return &OpenAI{client: openai.NewClient(opts...), config: cfg}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string {
	return "openai"
}

// Generate calls Images.Generate for fresh images and Images.Edit when a
// prior or reference image is present.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	size := openAISize(req.aspectRatio())

	var (
		resp *openai.ImagesResponse
		err  error
	)
	if req.Prior == nil && req.Reference == nil {
		resp, err = o.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Prompt: directPrompt(req),
			Model:  openai.ImageModel(o.config.Model),
			Size:   openai.ImageGenerateParamsSize(size),
			N:      openai.Int(1),
		})
	} else {
		var inputs []io.Reader
		prompt := directPrompt(req)
		if req.IsEdit() {
			inputs = append(inputs, openai.File(bytes.NewReader(req.Prior.Data), "prior.png", mimeOrPNG(req.Prior)))
			prompt = editInstruction(req)
		}
		if req.Reference != nil {
			inputs = append(inputs, openai.File(bytes.NewReader(req.Reference.Data), "reference.png", mimeOrPNG(req.Reference)))
		}
		resp, err = o.client.Images.Edit(ctx, openai.ImageEditParams{
			Image:  openai.ImageEditParamsImageUnion{OfFileArray: inputs},
			Prompt: prompt,
			Model:  openai.ImageModel(o.config.Model),
			Size:   openai.ImageEditParamsSize(size),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("OpenAI image request failed: %w", err)
	}

	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode OpenAI image: %w", err)
	}

	return &Result{
		Image: NewImage(data),
		Text:  resp.Data[0].RevisedPrompt,
	}, nil
}

// openAISize maps an aspect ratio to the closest supported size.
func openAISize(aspect string) string {
	w, h, ok := parseAspect(aspect)
	if !ok {
		return "1024x1024"
	}
	ratio := w / h
	switch {
	case ratio > 1.2:
		return "1536x1024"
	case ratio < 1/1.2:
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

func parseAspect(aspect string) (float64, float64, bool) {
	ws, hs, found := strings.Cut(aspect, ":")
	if !found {
		return 0, 0, false
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(ws), 64)
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func mimeOrPNG(img *Image) string {
	if img.MIMEType == "" {
		return "image/png"
	}
	return img.MIMEType
}

var _ Generator = (*OpenAI)(nil)
