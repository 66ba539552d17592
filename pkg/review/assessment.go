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
	"encoding/json"
	"fmt"
	"strings"
)

// Assessment is the structured reply requested from the review model.
type Assessment struct {
	Dimensions  []DimensionAssessment `json:"dimensions" jsonschema:"required,description=One entry per rubric dimension using the exact dimension name"`
	Issues      []string              `json:"specific_issues" jsonschema:"required,description=Specific problems found in the image"`
	Suggestions []string              `json:"improvement_suggestions" jsonschema:"required,description=Specific actionable improvements for the next iteration"`
	Summary     string                `json:"summary" jsonschema:"description=One or two sentence overall assessment"`
}

// DimensionAssessment scores a single rubric dimension.
type DimensionAssessment struct {
	Name    string  `json:"name" jsonschema:"required,description=Rubric dimension name"`
	Score   float64 `json:"score" jsonschema:"required,minimum=0,maximum=10,description=Score from 0 (unacceptable) to 10 (excellent)"`
	Comment string  `json:"comment" jsonschema:"description=Short justification for the score"`
}

// ParseAssessment decodes model output into an Assessment.
//
// Markdown code fences and prose around the JSON object are tolerated.
// Output without any dimension scores is rejected.
func ParseAssessment(text string) (*Assessment, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidVerdict)
	}

	var a Assessment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if len(a.Dimensions) == 0 {
		return nil, fmt.Errorf("%w: no dimension scores", ErrInvalidVerdict)
	}
	return &a, nil
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
