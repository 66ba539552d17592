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

package instruction

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// bracePattern finds brace groups. Only groups holding an identifier,
// optionally suffixed with "?", are treated as placeholders.
var bracePattern = regexp.MustCompile(`{+[^{}]*}+`)

// Vars holds placeholder values.
type Vars map[string]any

type segment struct {
	text     string
	name     string
	optional bool
}

// Template is a parsed instruction. It is safe for concurrent use.
type Template struct {
	raw      string
	segments []segment
}

// New parses text once so Render only substitutes.
func New(text string) *Template {
	t := &Template{raw: text}
	pos := 0
	for _, loc := range bracePattern.FindAllStringIndex(text, -1) {
		name, optional, ok := placeholderName(text[loc[0]:loc[1]])
		if !ok {
			continue
		}
		if loc[0] > pos {
			t.segments = append(t.segments, segment{text: text[pos:loc[0]]})
		}
		t.segments = append(t.segments, segment{name: name, optional: optional})
		pos = loc[1]
	}
	if pos < len(text) {
		t.segments = append(t.segments, segment{text: text[pos:]})
	}
	return t
}

// Raw returns the source text.
func (t *Template) Raw() string { return t.raw }

// Placeholders lists distinct placeholder names in order of appearance.
func (t *Template) Placeholders() []string {
	var out []string
	for _, s := range t.segments {
		if s.name != "" && !slices.Contains(out, s.name) {
			out = append(out, s.name)
		}
	}
	return out
}

// Render substitutes vars. A required placeholder that is missing or
// renders to an empty string fails; an optional one becomes "".
func (t *Template) Render(vars Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(t.raw))
	for _, s := range t.segments {
		if s.name == "" {
			b.WriteString(s.text)
			continue
		}
		v, err := lookup(vars, s)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// MustRender panics when Render fails. For built-in templates only.
func (t *Template) MustRender(vars Vars) string {
	out, err := t.Render(vars)
	if err != nil {
		panic("instruction: " + err.Error())
	}
	return out
}

func lookup(vars Vars, s segment) (string, error) {
	raw, ok := vars[s.name]
	if !ok || raw == nil {
		if s.optional {
			return "", nil
		}
		return "", fmt.Errorf("placeholder %q has no value", s.name)
	}
	v := fmt.Sprint(raw)
	if v == "" && !s.optional {
		return "", fmt.Errorf("placeholder %q is empty", s.name)
	}
	return v, nil
}

// placeholderName reports the identifier inside a brace group such as
// "{ brief }" or "{feedback?}".
func placeholderName(group string) (name string, optional bool, ok bool) {
	name = strings.TrimSpace(strings.Trim(group, "{}"))
	name, optional = strings.CutSuffix(name, "?")
	return name, optional, identifier(name)
}

func identifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// Inject renders a one-off template.
func Inject(text string, vars Vars) (string, error) {
	return New(text).Render(vars)
}

// HasPlaceholders reports whether text holds at least one placeholder.
// JSON objects and other brace groups do not count.
func HasPlaceholders(text string) bool {
	return len(New(text).Placeholders()) > 0
}

// ListPlaceholders returns the distinct placeholder names in text.
func ListPlaceholders(text string) []string {
	return New(text).Placeholders()
}
