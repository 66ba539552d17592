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
	"strings"

	"github.com/kadirpekel/postforge/pkg/instruction"
)

var reviewTemplate = instruction.New(`You are a marketing content reviewer. Your job is to evaluate the attached generated marketing image against the original user request and provide constructive feedback.

Score each of the following dimensions from 0 to 10:

{dimensions}

Provide specific, actionable suggestions for improvement. Focus on practical issues that can be addressed in the next iteration. Avoid vague advice: instead of "improve contrast" say "add a dark gradient behind the headline".

Be constructive but honest in your assessment. The content should be good enough to publish; it does not need to be perfect.

Original user request: {brief}
Current iteration: {iteration}
Previous feedback: {previous_feedback?}`)

const jsonReplyInstruction = `

Reply with a single JSON object and nothing else, in this shape:
{"dimensions": [{"name": "<dimension>", "score": 0-10, "comment": "..."}], "specific_issues": ["..."], "improvement_suggestions": ["..."], "summary": "..."}`

// reviewPrompt renders the review instruction. withJSONShape appends an
// explicit reply format for backends without schema-constrained output.
func reviewPrompt(req *Request, rubric Rubric, withJSONShape bool) (string, error) {
	iteration := req.Iteration
	if iteration < 1 {
		iteration = 1
	}
	previous := strings.TrimSpace(req.PreviousFeedback)
	if previous == "" {
		previous = "none (first iteration)"
	}

	out, err := reviewTemplate.Render(instruction.Vars{
		"dimensions":        rubric.Describe(),
		"brief":             strings.TrimSpace(req.Brief),
		"iteration":         iteration,
		"previous_feedback": previous,
	})
	if err != nil {
		return "", err
	}
	if withJSONShape {
		out += jsonReplyInstruction
	}
	return out, nil
}
