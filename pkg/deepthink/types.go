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

// Package deepthink runs the bounded generate, review and refine loop.
//
// A run moves through Init, Generate, Review and Decide until a stop
// condition fires. Every generated image is persisted as a new asset
// version before it is reviewed, so partial history survives failures and
// cancellation.
package deepthink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/review"
)

// DefaultMaxAttempts caps a run when no bound is configured.
const DefaultMaxAttempts = 5

// StopReason explains why a run ended.
type StopReason string

const (
	StopAccepted         StopReason = "accepted"
	StopMaxIterations    StopReason = "max_iterations"
	StopNoProgress       StopReason = "no_progress"
	StopGenerationFailed StopReason = "generation_failed"
	StopReviewFailed     StopReason = "review_failed"
	StopCancelled        StopReason = "cancelled"
	StopStoreFailed      StopReason = "store_failed"
)

// Succeeded reports whether the run ended with an accepted image.
func (s StopReason) Succeeded() bool {
	return s == StopAccepted
}

// ErrInvalidRequest is returned for a request the controller cannot run.
var ErrInvalidRequest = errors.New("invalid deep think request")

// Request starts one Deep-Think run.
type Request struct {
	// Brief is the creative request.
	Brief string

	// AssetName receives one version per attempt.
	AssetName string

	// Reference is an optional inspiration image passed to every attempt.
	Reference *imagegen.Image

	AspectRatio string
	TextOverlay string

	// MaxAttempts overrides the controller bound when positive.
	MaxAttempts int

	// Observer is called after every stored attempt of this run, after the
	// controller-wide observer.
	Observer Observer
}

// Validate checks the request.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Brief) == "" {
		return fmt.Errorf("%w: brief is required", ErrInvalidRequest)
	}
	if err := asset.ValidateName(r.AssetName); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.AssetName == asset.ReferenceAsset {
		return fmt.Errorf("%w: %s is reserved for reference uploads", ErrInvalidRequest, asset.ReferenceAsset)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must be non-negative", ErrInvalidRequest)
	}
	return nil
}

// Attempt records one pass through the loop.
type Attempt struct {
	// Number is 1-based.
	Number int `json:"number"`

	// VersionIndex is the asset version this attempt produced.
	VersionIndex int    `json:"version_index"`
	Filename     string `json:"filename"`

	// Prompt is the instruction sent to the image adapter.
	Prompt string `json:"prompt"`

	// Verdict is nil when the review failed.
	Verdict *review.Verdict `json:"verdict,omitempty"`

	// Progress compares Verdict with the previous attempt's verdict.
	Progress Progress `json:"progress"`
}

// Result is the outcome of a run.
type Result struct {
	RunID     string `json:"run_id"`
	AssetName string `json:"asset_name"`

	// Final is the last stored version, nil if nothing was stored.
	Final *asset.Version `json:"final,omitempty"`

	History    []Attempt  `json:"history"`
	StopReason StopReason `json:"stop_reason"`

	// Err is the adapter or context error behind a failed stop reason.
	Err error `json:"-"`
}

// State is the transient state of a run. It is created at Init, mutated
// once per pass and discarded when the run ends.
type State struct {
	AssetName    string
	Current      *asset.Version
	AttemptCount int
	MaxAttempts  int
	LastVerdict  *review.Verdict

	// Stalled counts consecutive attempts without progress.
	Stalled    int
	StopReason StopReason
}

// Observer is notified after every stored attempt.
type Observer func(a Attempt)
