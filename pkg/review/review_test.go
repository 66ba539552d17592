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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/imagegen"
)

func assessmentWith(score float64) *Assessment {
	a := &Assessment{}
	for _, dim := range DefaultDimensions() {
		a.Dimensions = append(a.Dimensions, DimensionAssessment{Name: dim, Score: score})
	}
	return a
}

func TestRubric_Judge(t *testing.T) {
	rubric := DefaultRubric()

	t.Run("accepts above threshold and floor", func(t *testing.T) {
		v := rubric.Judge(assessmentWith(8))
		assert.True(t, v.Accept)
		assert.Equal(t, 0.8, v.Score)
		assert.Len(t, v.Dimensions, 6)
	})

	t.Run("rejects below threshold", func(t *testing.T) {
		v := rubric.Judge(assessmentWith(7))
		assert.False(t, v.Accept)
		assert.Equal(t, 0.7, v.Score)
	})

	t.Run("one dimension below floor rejects", func(t *testing.T) {
		a := assessmentWith(9)
		a.Dimensions[3] = DimensionAssessment{Name: "Text_Legibility and Spelling", Score: 4, Comment: "SALE is spelt SLAE"}
		v := rubric.Judge(a)
		assert.False(t, v.Accept)
		assert.False(t, v.Dimensions[3].Passed)
		assert.Contains(t, v.Feedback, "text legibility and spelling scored 4.0/10: SALE is spelt SLAE")
	})

	t.Run("missing dimensions score zero and unknown ones are ignored", func(t *testing.T) {
		v := rubric.Judge(&Assessment{Dimensions: []DimensionAssessment{
			{Name: "visual appeal", Score: 10},
			{Name: "vibes", Score: 10},
		}})
		assert.False(t, v.Accept)
		assert.InDelta(t, 10.0/60.0, v.Score, 0.001)
		for _, d := range v.Dimensions {
			if d.Name != DimensionVisualAppeal {
				assert.Zero(t, d.Score)
			}
		}
	})

	t.Run("scores are clamped", func(t *testing.T) {
		v := rubric.Judge(assessmentWith(42))
		assert.Equal(t, 1.0, v.Score)
		v = rubric.Judge(assessmentWith(-3))
		assert.Equal(t, 0.0, v.Score)
	})

	t.Run("feedback lists issues and suggestions", func(t *testing.T) {
		a := assessmentWith(5)
		a.Issues = []string{"headline is hard to read", " "}
		a.Suggestions = []string{"add a dark gradient behind the headline"}
		v := rubric.Judge(a)
		assert.Equal(t, []string{"headline is hard to read"}, v.Issues)
		assert.True(t, strings.HasPrefix(v.Feedback, "Issues:\n1. headline is hard to read\n\nSuggestions:\n1. add a dark gradient"))
	})

	t.Run("accepted verdict without notes falls back to summary", func(t *testing.T) {
		a := assessmentWith(9)
		a.Summary = "Ready to publish."
		assert.Equal(t, "Ready to publish.", rubric.Judge(a).Feedback)
	})
}

func TestRubric_ValidateAndDescribe(t *testing.T) {
	assert.NoError(t, DefaultRubric().Validate())
	assert.Error(t, Rubric{}.Validate())
	assert.Error(t, Rubric{Dimensions: []string{"a"}, AcceptThreshold: 2}.Validate())
	assert.Error(t, Rubric{Dimensions: []string{"a"}, AcceptThreshold: 0.5, DimensionFloor: 11}.Validate())

	desc := DefaultRubric().Describe()
	assert.True(t, strings.HasPrefix(desc, "1. **adherence to request**: Does the content match"))
	assert.Contains(t, desc, "6. **feedback addressed**")

	assert.Equal(t, "1. **custom**", Rubric{Dimensions: []string{"custom"}}.Describe())
}

func TestRubricFromConfig(t *testing.T) {
	cfg := &config.ReviewConfig{Dimensions: []string{"a", "b"}, AcceptThreshold: 0.9, DimensionFloor: 7}
	r := RubricFromConfig(cfg)
	assert.Equal(t, []string{"a", "b"}, r.Dimensions)
	assert.Equal(t, 0.9, r.AcceptThreshold)
	assert.Equal(t, 7.0, r.DimensionFloor)

	assert.Equal(t, DefaultRubric(), RubricFromConfig(nil))
}

func TestParseAssessment(t *testing.T) {
	valid := `{"dimensions":[{"name":"visual appeal","score":7,"comment":"ok"}],"specific_issues":["x"],"improvement_suggestions":["y"],"summary":"fine"}`

	for name, input := range map[string]string{
		"plain":  valid,
		"fenced": "```json\n" + valid + "\n```",
		"prose":  "Here is my review:\n" + valid + "\nThanks!",
	} {
		t.Run(name, func(t *testing.T) {
			a, err := ParseAssessment(input)
			require.NoError(t, err)
			require.Len(t, a.Dimensions, 1)
			assert.Equal(t, 7.0, a.Dimensions[0].Score)
			assert.Equal(t, []string{"x"}, a.Issues)
			assert.Equal(t, []string{"y"}, a.Suggestions)
		})
	}

	for name, input := range map[string]string{
		"empty":         "",
		"no object":     "looks great",
		"broken json":   `{"dimensions": [`,
		"no dimensions": `{"specific_issues": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAssessment(input)
			assert.ErrorIs(t, err, ErrInvalidVerdict)
		})
	}
}

func TestAssessmentSchema(t *testing.T) {
	schema, err := AssessmentSchema()
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "dimensions")
	assert.Contains(t, props, "specific_issues")
	assert.Contains(t, props, "improvement_suggestions")
	assert.ElementsMatch(t, []any{"dimensions", "specific_issues", "improvement_suggestions"}, schema["required"])

	gs := toGenaiSchema(schema)
	assert.Equal(t, genai.TypeObject, gs.Type)
	require.NotNil(t, gs.Properties["dimensions"])
	assert.Equal(t, genai.TypeArray, gs.Properties["dimensions"].Type)

	item := gs.Properties["dimensions"].Items
	require.NotNil(t, item)
	require.NotNil(t, item.Properties["score"])
	assert.Equal(t, genai.TypeNumber, item.Properties["score"].Type)
	require.NotNil(t, item.Properties["score"].Maximum)
	assert.Equal(t, 10.0, *item.Properties["score"].Maximum)
}

func TestReviewPrompt(t *testing.T) {
	req := &Request{Brief: "holiday promotion poster"}
	prompt, err := reviewPrompt(req, DefaultRubric(), false)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Original user request: holiday promotion poster")
	assert.Contains(t, prompt, "Current iteration: 1")
	assert.Contains(t, prompt, "Previous feedback: none (first iteration)")
	assert.Contains(t, prompt, "**brand adherence**")
	assert.NotContains(t, prompt, "Reply with a single JSON object")

	req.Iteration = 3
	req.PreviousFeedback = "fix the typo"
	prompt, err = reviewPrompt(req, DefaultRubric(), true)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Current iteration: 3")
	assert.Contains(t, prompt, "Previous feedback: fix the typo")
	assert.Contains(t, prompt, "Reply with a single JSON object")
}

func TestRequest_Rubric(t *testing.T) {
	req := &Request{Rubric: Rubric{AcceptThreshold: 0.9}}
	r := req.rubric()
	assert.Equal(t, DefaultDimensions(), r.Dimensions)
	assert.Equal(t, 0.9, r.AcceptThreshold)
	assert.Equal(t, DefaultDimensionFloor, r.DimensionFloor)

	assert.Error(t, (&Request{Brief: "x"}).Validate())
	assert.Error(t, (&Request{Image: &imagegen.Image{Data: []byte{1}}}).Validate())
}

func modelReply(score float64) string {
	a := assessmentWith(score)
	a.Issues = []string{"logo too small"}
	data, _ := json.Marshal(a)
	return string(data)
}

func TestGemini_Review(t *testing.T) {
	var mu sync.Mutex
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": modelReply(8)}}},
			}},
		})
	}))
	defer srv.Close()

	r, err := NewGemini(GeminiConfig{APIKey: "test", Model: "review-model", BaseURL: srv.URL})
	require.NoError(t, err)

	v, err := r.Review(context.Background(), &Request{
		Image: &imagegen.Image{Data: []byte("png"), MIMEType: "image/png"},
		Brief: "holiday poster",
	})
	require.NoError(t, err)
	assert.True(t, v.Accept)
	assert.Equal(t, []string{"logo too small"}, v.Issues)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, "holiday poster")
}

func TestAnthropic_Review(t *testing.T) {
	var mu sync.Mutex
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": "```json\n" + modelReply(5) + "\n```"}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
		})
	}))
	defer srv.Close()

	r, err := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Name())

	v, err := r.Review(context.Background(), &Request{
		Image: &imagegen.Image{Data: []byte("png")},
		Brief: "holiday poster",
	})
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Equal(t, 0.5, v.Score)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/v1/messages", path)
}

type staticReviewer struct {
	calls int
}

func (s *staticReviewer) Name() string { return "static" }

func (s *staticReviewer) Review(ctx context.Context, req *Request) (*Verdict, error) {
	s.calls++
	return req.rubric().Judge(assessmentWith(9)), nil
}

func TestWrappers(t *testing.T) {
	inner := &staticReviewer{}
	assert.Same(t, Reviewer(inner), RateLimited(inner, 0))

	r := Instrumented(RateLimited(inner, 60), nil)
	assert.Equal(t, "static", r.Name())

	v, err := r.Review(context.Background(), &Request{})
	require.NoError(t, err)
	assert.True(t, v.Accept)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Review(ctx, &Request{})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
