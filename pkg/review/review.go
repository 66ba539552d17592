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

// Package review judges generated images against a rubric.
//
// A Reviewer asks a vision model for per-dimension scores and concrete
// issues. The accept decision itself is computed locally by Rubric.Judge
// so that loop continuation is deterministic for a given assessment.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/postforge/pkg/imagegen"
)

// ErrInvalidVerdict is returned when the model output cannot be parsed
// into an assessment.
var ErrInvalidVerdict = errors.New("invalid review verdict")

// Request is one review.
type Request struct {
	// Image under review.
	Image *imagegen.Image

	// Brief is the original user request.
	Brief string

	// Rubric scores the assessment. Zero value means DefaultRubric.
	Rubric Rubric

	// Iteration is the 1-based attempt number.
	Iteration int

	// PreviousFeedback is the feedback the image was meant to address.
	PreviousFeedback string
}

// Validate checks the request.
func (r *Request) Validate() error {
	if r.Image == nil || len(r.Image.Data) == 0 {
		return fmt.Errorf("image is required")
	}
	if strings.TrimSpace(r.Brief) == "" {
		return fmt.Errorf("brief is required")
	}
	return nil
}

func (r *Request) rubric() Rubric {
	if len(r.Rubric.Dimensions) == 0 {
		rubric := DefaultRubric()
		if r.Rubric.AcceptThreshold > 0 {
			rubric.AcceptThreshold = r.Rubric.AcceptThreshold
		}
		if r.Rubric.DimensionFloor > 0 {
			rubric.DimensionFloor = r.Rubric.DimensionFloor
		}
		return rubric
	}
	return r.Rubric
}

// DimensionScore is the judged score of one rubric dimension.
type DimensionScore struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Passed  bool    `json:"passed"`
	Comment string  `json:"comment,omitempty"`
}

// Verdict is the outcome of one review.
type Verdict struct {
	// Accept is true when the image meets the rubric.
	Accept bool `json:"accept"`

	// Score is the mean dimension score normalized to [0,1].
	Score float64 `json:"score"`

	// Feedback is actionable guidance for the next attempt.
	Feedback string `json:"feedback"`

	Dimensions  []DimensionScore `json:"dimensions"`
	Issues      []string         `json:"issues,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Summary     string           `json:"summary,omitempty"`
}

// Reviewer evaluates images.
//
// Implementations must be safe for concurrent use.
type Reviewer interface {
	// Name identifies the backend, e.g. "gemini".
	Name() string

	// Review scores req.Image against req.Rubric.
	Review(ctx context.Context, req *Request) (*Verdict, error)
}
