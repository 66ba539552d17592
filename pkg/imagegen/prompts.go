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
	"strings"

	"github.com/kadirpekel/postforge/pkg/instruction"
)

var rewriteTemplate = instruction.New(`Rewrite the following prompt to be more descriptive and creative for an image generation model, adding relevant creative details: {prompt}
**Important:** Output your prompt as a single paragraph.{overlay?}{aspect?}{reference?}`)

// rewriteInstruction asks a text model to expand a brief into a detailed
// single-paragraph image prompt.
func rewriteInstruction(req *Request) (string, error) {
	return rewriteTemplate.Render(promptVars(req))
}

var directTemplate = instruction.New(`{prompt}{overlay?}{aspect?}{reference?}`)

// directPrompt is the image prompt used when rewriting is disabled or for
// backends without a text model.
func directPrompt(req *Request) string {
	out, err := directTemplate.Render(promptVars(req))
	if err != nil {
		return req.Prompt
	}
	return strings.TrimSpace(out)
}

func promptVars(req *Request) instruction.Vars {
	vars := instruction.Vars{
		"prompt": strings.TrimSpace(req.Prompt),
		"aspect": " The image should be of aspect ratio: " + req.aspectRatio() + ".",
	}
	if req.TextOverlay != "" {
		vars["overlay"] = " The image should have the following text overlayed on it: '" + req.TextOverlay + "'."
	}
	if req.Reference != nil {
		vars["reference"] = " Use the provided reference image as inspiration for style, composition, or visual elements."
	}
	return vars
}

var editTemplate = instruction.New(`{prompt}{overlay?}{reference?}`)

// editInstruction is the text part of an edit request.
func editInstruction(req *Request) string {
	vars := promptVars(req)
	if req.Reference != nil {
		vars["reference"] = " Use the second image as a reference to guide the edit."
	}
	out, err := editTemplate.Render(vars)
	if err != nil {
		return req.Prompt
	}
	return strings.TrimSpace(out)
}
