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

// Package server exposes postforge over HTTP.
//
// Routes:
//
//	POST   /v1/sessions                               create a session
//	GET    /v1/sessions                               list the caller's sessions
//	GET    /v1/sessions/{id}                          session snapshot
//	DELETE /v1/sessions/{id}                          delete a session
//	POST   /v1/sessions/{id}/messages                 handle a request (JSON or SSE)
//	POST   /v1/sessions/{id}/references               upload a reference image
//	GET    /v1/assets                                 asset summaries
//	GET    /v1/assets/{name}/versions                 version metadata
//	GET    /v1/assets/{name}/versions/{version}       image bytes; "latest" allowed
//	GET    /health                                    liveness
//	GET    /metrics                                   Prometheus scrape
//
// With authentication enabled, sessions belong to the token subject and
// other subjects see them as missing.
package server
