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

// Package testutils provides test doubles for the postforge adapters.
package testutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/review"
)

// TestConfig returns a valid config with in-memory storage and dummy
// API keys. Building adapters from it makes no network calls.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Image.APIKey = "test-key"
	cfg.Review.APIKey = "test-key"
	cfg.Storage.Backend = config.StorageMemory
	cfg.Storage.Database = nil
	return cfg
}

// TestContext returns a context bounded to five seconds and cancelled
// when the test ends.
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 5*time.Second)
}

// TestContextWithTimeout is TestContext with a custom bound.
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// PNG returns a small valid PNG whose first pixel encodes seed, so
// different seeds give different bytes.
func PNG(seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: 128, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MockGenerator implements imagegen.Generator for testing.
//
// Errors are consumed in order, one per call; a nil entry or an exhausted
// list means success.
type MockGenerator struct {
	mu sync.Mutex

	Errors       []error
	GenerateFunc func(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error)
	Delay        time.Duration

	requests []*imagegen.Request
}

// NewMockGenerator creates a generator that always succeeds.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Name returns "mock".
func (m *MockGenerator) Name() string {
	return "mock"
}

// Generate records the request and returns a fresh PNG.
func (m *MockGenerator) Generate(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	copied := *req
	m.requests = append(m.requests, &copied)
	call := len(m.requests)
	var err error
	if len(m.Errors) > 0 {
		err = m.Errors[0]
		m.Errors = m.Errors[1:]
	}
	fn := m.GenerateFunc
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return &imagegen.Result{Image: imagegen.NewImage(PNG(call))}, nil
}

// Requests returns the recorded requests.
func (m *MockGenerator) Requests() []*imagegen.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*imagegen.Request(nil), m.requests...)
}

// Calls returns the number of Generate calls.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MockReviewer implements review.Reviewer with scripted outcomes.
//
// Each call consumes the next Step. When the script is exhausted the last
// step repeats; an empty script accepts.
type MockReviewer struct {
	mu sync.Mutex

	Steps []ReviewStep

	requests []*review.Request
}

// ReviewStep is one scripted review outcome.
type ReviewStep struct {
	Verdict *review.Verdict
	Err     error
}

// NewMockReviewer scripts the given verdicts.
func NewMockReviewer(verdicts ...*review.Verdict) *MockReviewer {
	m := &MockReviewer{}
	for _, v := range verdicts {
		m.Steps = append(m.Steps, ReviewStep{Verdict: v})
	}
	return m
}

// Name returns "mock".
func (m *MockReviewer) Name() string {
	return "mock"
}

// Review records the request and returns the next scripted outcome.
func (m *MockReviewer) Review(ctx context.Context, req *review.Request) (*review.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *req
	m.requests = append(m.requests, &copied)

	if len(m.Steps) == 0 {
		return Accept(), nil
	}
	step := m.Steps[0]
	if len(m.Steps) > 1 {
		m.Steps = m.Steps[1:]
	}
	return step.Verdict, step.Err
}

// Requests returns the recorded requests.
func (m *MockReviewer) Requests() []*review.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*review.Request(nil), m.requests...)
}

// Calls returns the number of Review calls.
func (m *MockReviewer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Accept returns an accepting verdict.
func Accept() *review.Verdict {
	return &review.Verdict{Accept: true, Score: 0.9, Feedback: "Ready to publish."}
}

// Reject returns a rejecting verdict with the given score and feedback.
func Reject(score float64, feedback string) *review.Verdict {
	return &review.Verdict{
		Score:       score,
		Feedback:    feedback,
		Issues:      []string{feedback},
		Suggestions: []string{"address: " + feedback},
	}
}

var (
	_ imagegen.Generator = (*MockGenerator)(nil)
	_ review.Reviewer    = (*MockReviewer)(nil)
)
