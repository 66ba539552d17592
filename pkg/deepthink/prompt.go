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

package deepthink

import (
	"strings"

	"github.com/kadirpekel/postforge/pkg/instruction"
	"github.com/kadirpekel/postforge/pkg/review"
)

var refineTemplate = instruction.New(`Revise this image so that it meets the original request: {brief}

Apply the following review feedback. Make explicit, localized changes and keep everything that already works. Prefer concrete edits such as "add a black gradient behind the headline to increase contrast" over vague ones such as "improve contrast".

{feedback}`)

// refinementPrompt turns the last verdict into an edit instruction.
func refinementPrompt(brief string, verdict *review.Verdict) string {
	feedback := ""
	if verdict != nil {
		feedback = strings.TrimSpace(verdict.Feedback)
	}
	if feedback == "" {
		feedback = "No specific issues were reported. Improve overall polish while keeping the composition."
	}

	return refineTemplate.MustRender(instruction.Vars{
		"brief":    strings.TrimSpace(brief),
		"feedback": feedback,
	})
}
