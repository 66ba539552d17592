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

// Package instruction renders the prompt templates sent to the image and
// review models.
//
// # Placeholder Syntax
//
//	{variable}   - required value
//	{variable?}  - optional (empty string if absent)
//
// # Usage
//
//	tmpl := instruction.New("Original request: {brief}\nPrevious feedback: {feedback?}")
//	text, err := tmpl.Render(instruction.Vars{"brief": "holiday banner"})
//
// # Error Handling
//
// Required placeholders return an error if not found or empty.
// Invalid placeholder names (not valid identifiers) are left as-is, so JSON
// examples embedded in a prompt survive rendering.
package instruction
