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

// Package router decides whether a user request runs in Regular or
// Deep-Think mode.
package router

import (
	"regexp"
	"strings"
)

// DefaultTriggerPhrase selects Deep-Think mode when it appears anywhere in
// the input, in any letter case.
const DefaultTriggerPhrase = "deep think"

// Mode is the execution mode for one request.
type Mode string

const (
	ModeRegular   Mode = "regular"
	ModeDeepThink Mode = "deep_think"
)

// Route is the routing outcome.
type Route struct {
	Mode Mode

	// Prompt is the input with the trigger phrase removed and whitespace
	// collapsed.
	Prompt string

	// Original is the untouched input.
	Original string
}

// Router matches a trigger phrase.
type Router struct {
	phrase  string
	pattern *regexp.Regexp
}

// New creates a router. An empty phrase selects DefaultTriggerPhrase.
func New(phrase string) *Router {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if phrase == "" {
		phrase = DefaultTriggerPhrase
	}

	// Words of the phrase may be separated by any run of whitespace.
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return &Router{
		phrase:  phrase,
		pattern: regexp.MustCompile(`(?i)` + strings.Join(words, `\s+`)),
	}
}

// Phrase returns the trigger phrase.
func (r *Router) Phrase() string {
	return r.phrase
}

// Route classifies input.
func (r *Router) Route(input string) Route {
	route := Route{Mode: ModeRegular, Original: input}
	if r.pattern.MatchString(input) {
		route.Mode = ModeDeepThink
		input = r.pattern.ReplaceAllString(input, " ")
	}
	route.Prompt = strings.Join(strings.Fields(input), " ")
	return route
}

// IsDeepThink reports whether input triggers Deep-Think mode.
func (r *Router) IsDeepThink(input string) bool {
	return r.pattern.MatchString(input)
}
