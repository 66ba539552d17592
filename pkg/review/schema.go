// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
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
	"sync"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// AssessmentSchema is the inlined JSON schema of Assessment, reflected
// once per process. Backends with structured output send it verbatim.
var AssessmentSchema = sync.OnceValues(func() (map[string]any, error) {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	raw, err := json.Marshal(r.Reflect(&Assessment{}))
	if err != nil {
		return nil, fmt.Errorf("reflect assessment schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode assessment schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
})

// toGenaiSchema maps the subset of JSON schema Assessment uses onto
// genai.Schema. Gemini spells types in upper case.
func toGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	out := &genai.Schema{
		Required: stringList(m["required"]),
		Enum:     stringList(m["enum"]),
	}
	out.Description, _ = m["description"].(string)
	if t, ok := m["type"].(string); ok {
		out.Type = genai.Type(strings.ToUpper(t))
	}
	if props, ok := m["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for key, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[key] = toGenaiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		out.Items = toGenaiSchema(items)
	}
	if v, ok := m["minimum"].(float64); ok {
		out.Minimum = &v
	}
	if v, ok := m["maximum"].(float64); ok {
		out.Maximum = &v
	}
	return out
}

func stringList(v any) []string {
	items, _ := v.([]any)
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
