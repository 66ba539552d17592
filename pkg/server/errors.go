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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, asset.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, asset.ErrNameConflict), errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, runner.ErrInvalidRequest),
		errors.Is(err, runner.ErrNothingToEdit),
		errors.Is(err, asset.ErrInvalidName),
		errors.Is(err, asset.ErrInvalidSource),
		errors.Is(err, asset.ErrEmptyData),
		errors.Is(err, imagegen.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, imagegen.ErrNoImage), errors.Is(err, review.ErrInvalidVerdict):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
