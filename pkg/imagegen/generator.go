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

// Package imagegen generates and edits images through hosted models.
//
// A Generator receives a prompt plus optional reference and prior images
// and returns new image bytes. When Prior is set the request is an edit of
// that image; otherwise it is a fresh generation.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoImage is returned when the model replied without image data.
	ErrNoImage = errors.New("model returned no image")

	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// DefaultAspectRatio is used when a request does not set one.
const DefaultAspectRatio = "1:1"

// Image is an encoded image.
type Image struct {
	Data     []byte
	MIMEType string
}

// NewImage wraps data and sniffs its MIME type.
func NewImage(data []byte) *Image {
	return &Image{Data: data, MIMEType: http.DetectContentType(data)}
}

// Request describes one generation or edit.
type Request struct {
	// Prompt is the brief for a generation or the instruction for an edit.
	Prompt string

	// AspectRatio such as "1:1" or "16:9".
	AspectRatio string

	// TextOverlay is text that must appear on the image.
	TextOverlay string

	// Reference is an optional inspiration image.
	Reference *Image

	// Prior is the image being edited.
	Prior *Image
}

// IsEdit reports whether the request edits a prior image.
func (r *Request) IsEdit() bool {
	return r.Prior != nil && len(r.Prior.Data) > 0
}

// Validate checks the request.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if r.Prior != nil && len(r.Prior.Data) == 0 {
		return fmt.Errorf("prior image is empty")
	}
	if r.Reference != nil && len(r.Reference.Data) == 0 {
		return fmt.Errorf("reference image is empty")
	}
	return nil
}

func (r *Request) aspectRatio() string {
	if r.AspectRatio == "" {
		return DefaultAspectRatio
	}
	return r.AspectRatio
}

// Result is a generated image.
type Result struct {
	Image *Image

	// Text is any commentary the model returned alongside the image.
	Text string

	// RewrittenPrompt is the prompt actually sent to the image model when
	// the backend rewrote the brief.
	RewrittenPrompt string
}

// Generator produces images.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Name identifies the backend, e.g. "gemini".
	Name() string

	// Generate creates a new image or edits req.Prior.
	Generate(ctx context.Context, req *Request) (*Result, error)
}
