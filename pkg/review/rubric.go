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
	"fmt"
	"math"
	"strings"
)

// Default rubric dimensions.
const (
	DimensionAdherence        = "adherence to request"
	DimensionVisualAppeal     = "visual appeal"
	DimensionTechnicalQuality = "technical quality"
	DimensionTextLegibility   = "text legibility and spelling"
	DimensionBrandAdherence   = "brand adherence"
	DimensionFeedback         = "feedback addressed"
)

// Rubric defaults.
const (
	DefaultAcceptThreshold = 0.75
	DefaultDimensionFloor  = 6.0
	MaxDimensionScore      = 10.0
)

var dimensionGuidance = map[string]string{
	DimensionAdherence:        "Does the content match what the user originally asked for?",
	DimensionVisualAppeal:     "Are the composition, colors and overall design appealing and professional?",
	DimensionTechnicalQuality: "Is the image free of obvious problems such as distorted elements or artifacts?",
	DimensionTextLegibility:   "Is overlaid text readable and free of misspelt words?",
	DimensionBrandAdherence:   "Does the image respect the brand, tone and audience implied by the request?",
	DimensionFeedback:         "If this is a revision, has the previous feedback been properly addressed? Score 10 on the first iteration.",
}

// DefaultDimensions returns the standard rubric dimensions.
func DefaultDimensions() []string {
	return []string{
		DimensionAdherence,
		DimensionVisualAppeal,
		DimensionTechnicalQuality,
		DimensionTextLegibility,
		DimensionBrandAdherence,
		DimensionFeedback,
	}
}

// Rubric is the fixed set of evaluation dimensions and acceptance bounds.
type Rubric struct {
	// Dimensions are scored 0-10 each.
	Dimensions []string

	// AcceptThreshold is the minimum normalized mean score.
	AcceptThreshold float64

	// DimensionFloor is the minimum score every dimension must reach.
	DimensionFloor float64
}

// DefaultRubric returns the standard rubric.
func DefaultRubric() Rubric {
	return Rubric{
		Dimensions:      DefaultDimensions(),
		AcceptThreshold: DefaultAcceptThreshold,
		DimensionFloor:  DefaultDimensionFloor,
	}
}

// Validate checks the rubric bounds.
func (r Rubric) Validate() error {
	if len(r.Dimensions) == 0 {
		return fmt.Errorf("rubric needs at least one dimension")
	}
	if r.AcceptThreshold <= 0 || r.AcceptThreshold > 1 {
		return fmt.Errorf("accept threshold must be in (0, 1], got %v", r.AcceptThreshold)
	}
	if r.DimensionFloor < 0 || r.DimensionFloor > MaxDimensionScore {
		return fmt.Errorf("dimension floor must be in [0, 10], got %v", r.DimensionFloor)
	}
	return nil
}

// Describe renders the dimensions as a numbered list for prompts.
func (r Rubric) Describe() string {
	var b strings.Builder
	for i, dim := range r.Dimensions {
		fmt.Fprintf(&b, "%d. **%s**", i+1, dim)
		if guidance, ok := dimensionGuidance[dim]; ok {
			b.WriteString(": " + guidance)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Judge turns a model assessment into a verdict.
//
// Dimensions the rubric does not name are ignored and rubric dimensions
// missing from the assessment score zero. The verdict accepts iff the mean
// normalized score reaches AcceptThreshold and no dimension is below
// DimensionFloor.
func (r Rubric) Judge(a *Assessment) *Verdict {
	scores := make(map[string]DimensionAssessment, len(a.Dimensions))
	for _, d := range a.Dimensions {
		scores[normalizeDimension(d.Name)] = d
	}

	v := &Verdict{
		Issues:      nonEmpty(a.Issues),
		Suggestions: nonEmpty(a.Suggestions),
		Summary:     strings.TrimSpace(a.Summary),
	}

	allPassed := len(r.Dimensions) > 0
	var total float64
	for _, dim := range r.Dimensions {
		d := scores[normalizeDimension(dim)]
		score := clamp(d.Score)
		passed := score >= r.DimensionFloor
		if !passed {
			allPassed = false
		}
		total += score
		v.Dimensions = append(v.Dimensions, DimensionScore{
			Name:    dim,
			Score:   score,
			Passed:  passed,
			Comment: strings.TrimSpace(d.Comment),
		})
	}

	if len(r.Dimensions) > 0 {
		v.Score = round(total / float64(len(r.Dimensions)) / MaxDimensionScore)
	}
	v.Accept = allPassed && v.Score >= r.AcceptThreshold
	v.Feedback = v.renderFeedback()
	return v
}

// renderFeedback lists issues, suggestions and failing dimensions as
// numbered guidance.
func (v *Verdict) renderFeedback() string {
	var b strings.Builder

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title + ":\n")
		for i, item := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
	}

	var failing []string
	for _, d := range v.Dimensions {
		if d.Passed {
			continue
		}
		line := fmt.Sprintf("%s scored %.1f/10", d.Name, d.Score)
		if d.Comment != "" {
			line += ": " + d.Comment
		}
		failing = append(failing, line)
	}

	writeList("Issues", v.Issues)
	writeList("Suggestions", v.Suggestions)
	writeList("Below the bar", failing)

	if b.Len() == 0 {
		return v.Summary
	}
	return strings.TrimRight(b.String(), "\n")
}

func normalizeDimension(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > MaxDimensionScore {
		return MaxDimensionScore
	}
	return score
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}
