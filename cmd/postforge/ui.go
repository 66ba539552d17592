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

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kadirpekel/postforge/pkg/deepthink"
)

var (
	colorBrand   = lipgloss.Color("#10b981")
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}

	styleTitle   = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleKey     = lipgloss.NewStyle().Bold(true).Width(12)
)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, styleTitle.Render(title))
}

func printKV(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s %s\n", styleKey.Render(key+":"), value)
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, styleSuccess.Render("✔ ")+msg)
}

// renderAttempt renders one line of a Deep-Think run's history.
func renderAttempt(a deepthink.Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%2d. %s", a.Number, a.Filename)
	switch {
	case a.Verdict == nil:
		b.WriteString("  " + styleError.Render("review failed"))
	case a.Verdict.Accept:
		b.WriteString("  " + styleSuccess.Render(fmt.Sprintf("accepted (%.2f)", a.Verdict.Score)))
	default:
		b.WriteString("  " + styleWarning.Render(fmt.Sprintf("rejected (%.2f)", a.Verdict.Score)))
		if a.Verdict.Feedback != "" {
			b.WriteString("\n      " + styleMuted.Render(firstLine(a.Verdict.Feedback)))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
