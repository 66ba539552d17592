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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/auth"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session resolves {id} and hides sessions owned by other subjects.
func (s *HTTPServer) session(r *http.Request) (*session.Session, error) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if sess.Owner != auth.SubjectFromContext(r.Context()) {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("Session created", "session", sess.ID, "owner", sess.Owner)
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]session.Info, 0, len(list))
	for _, sess := range list {
		// Anonymous callers only see anonymous sessions.
		if sess.Owner != auth.SubjectFromContext(r.Context()) {
			continue
		}
		infos = append(infos, sess.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req runner.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", runner.ErrInvalidRequest, err))
		return
	}

	if !wantsEventStream(r) {
		resp, err := s.runner.Handle(r.Context(), sess, &req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// Busy sessions are rejected before the stream starts so the client
	// still gets a 409.
	if sess.Busy() {
		writeError(w, session.ErrSessionBusy)
		return
	}
	events, ok := newEventWriter(w)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}
	req.Observer = func(a deepthink.Attempt) {
		events.send("attempt", a)
	}

	resp, err := s.runner.Handle(r.Context(), sess, &req)
	if err != nil {
		events.send("error", map[string]any{"error": err.Error(), "status": statusFor(err)})
		return
	}
	events.send("result", resp)
}

func (s *HTTPServer) handleUploadReference(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := readUpload(w, r, s.cfg.MaxUploadBytes)
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := s.runner.UploadReference(r.Context(), sess, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"filename": v.Filename(), "version": v})
}

// readUpload accepts a multipart form with a "file" field or a raw image
// body.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var src io.Reader = r.Body
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, fmt.Errorf("%w: %v", runner.ErrInvalidRequest, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", runner.ErrInvalidRequest, err)
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrInvalidRequest, err)
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, fmt.Errorf("%w: upload is not an image", runner.ErrInvalidRequest)
	}
	return data, nil
}

func (s *HTTPServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.runner.Assets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if assets == nil {
		assets = []runner.AssetSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.runner.Store().ListVersions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	index, err := asset.ParseVersion(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := s.runner.Store().GetVersion(r.Context(), chi.URLParam(r, "name"), index)
	if err != nil {
		writeError(w, err)
		return
	}

	etag := strconv.Quote(v.SHA256)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", v.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(v.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", v.Filename()))
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Asset-Version", strconv.Itoa(v.Index))
	w.Header().Set("X-Asset-Source", string(v.Source))
	_, _ = w.Write(v.Data)
}
