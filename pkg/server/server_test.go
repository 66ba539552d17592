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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/auth"
	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
	"github.com/kadirpekel/postforge/pkg/testutils"
)

type staticValidator map[string]string

func (v staticValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	sub, ok := v[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Subject: sub}, nil
}

type testServer struct {
	*httptest.Server
	store asset.Store
	gen   *testutils.MockGenerator
	rev   *testutils.MockReviewer
}

func newTestServer(t *testing.T, opts []HTTPServerOption, verdicts ...*review.Verdict) *testServer {
	t.Helper()

	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer(verdicts...)
	ctrl, err := deepthink.New(store, gen, rev, deepthink.WithMaxAttempts(3))
	require.NoError(t, err)
	r, err := runner.New(runner.Config{Store: store, Generator: gen, Controller: ctrl})
	require.NoError(t, err)

	srv := NewHTTPServer(&config.ServerConfig{}, r, session.InMemoryManager(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, gen: gen, rev: rev}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body io.Reader, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) createSession(t *testing.T, token string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/v1/sessions", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[session.Info](t, resp).ID
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	// Metrics disabled.
	resp = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegularMessageFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t, "")

	resp := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", "", jsonBody(runner.Request{
		Input:     "create a spring sale poster",
		AssetName: "spring_sale",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[runner.Response](t, resp)
	assert.Equal(t, "spring_sale_v1.png", out.Filename)
	assert.Zero(t, ts.rev.Calls())

	resp = ts.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil)
	info := decode[session.Info](t, resp)
	assert.Equal(t, "spring_sale", info.CurrentAsset)
	assert.Len(t, info.Turns, 1)

	resp = ts.do(t, http.MethodGet, "/v1/assets", "", nil)
	assets := decode[map[string][]runner.AssetSummary](t, resp)["assets"]
	require.Len(t, assets, 1)
	assert.Equal(t, "spring_sale", assets[0].Name)

	resp = ts.do(t, http.MethodGet, "/v1/assets/spring_sale/versions", "", nil)
	versions := decode[map[string][]asset.Version](t, resp)["versions"]
	require.Len(t, versions, 1)
	assert.Equal(t, asset.SourceGenerated, versions[0].Source)

	resp = ts.do(t, http.MethodGet, "/v1/assets/spring_sale/versions/latest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Asset-Version"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, testutils.PNG(1), body)

	etag := resp.Header.Get("ETag")
	resp = ts.do(t, http.MethodGet, "/v1/assets/spring_sale/versions/v1", "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestDeepThinkMessage(t *testing.T) {
	ts := newTestServer(t, nil, testutils.Reject(0.4, "too dark"), testutils.Accept())
	id := ts.createSession(t, "")

	resp := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", "", jsonBody(runner.Request{
		Input:     "deep think holiday poster",
		AssetName: "holiday",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Mode     string `json:"mode"`
		Filename string `json:"filename"`
		Run      struct {
			StopReason string              `json:"stop_reason"`
			History    []deepthink.Attempt `json:"history"`
		} `json:"run"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "deep_think", out.Mode)
	assert.Equal(t, "holiday_v2.png", out.Filename)
	assert.Equal(t, "accepted", out.Run.StopReason)
	assert.Len(t, out.Run.History, 2)
}

func TestDeepThinkMessage_EventStream(t *testing.T) {
	ts := newTestServer(t, nil, testutils.Reject(0.4, "too dark"), testutils.Accept())
	id := ts.createSession(t, "")

	resp := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", "",
		jsonBody(runner.Request{Input: "deep think poster", AssetName: "promo"}),
		"Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"attempt", "attempt", "result"}, events)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   io.Reader
		status int
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/nope", nil, http.StatusNotFound},
		{"unknown asset", http.MethodGet, "/v1/assets/ghost/versions", nil, http.StatusNotFound},
		{"bad version", http.MethodGet, "/v1/assets/ghost/versions/vx", nil, http.StatusNotFound},
		{"bad json", http.MethodPost, "/v1/sessions/" + id + "/messages", strings.NewReader("{"), http.StatusBadRequest},
		{"empty prompt", http.MethodPost, "/v1/sessions/" + id + "/messages", jsonBody(runner.Request{Input: " "}), http.StatusBadRequest},
		{"nothing to edit", http.MethodPost, "/v1/sessions/" + id + "/messages", jsonBody(runner.Request{Input: "x", Edit: true}), http.StatusBadRequest},
		{"missing base", http.MethodPost, "/v1/sessions/" + id + "/messages", jsonBody(runner.Request{Input: "x", BaseFilename: "promo_v4.png"}), http.StatusNotFound},
		{"not an image", http.MethodPost, "/v1/sessions/" + id + "/references", strings.NewReader("hello"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrSessionBusy))
	assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("x: %w", asset.ErrNameConflict)))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestUploadReference(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t, "")

	resp := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/references", "", bytes.NewReader(testutils.PNG(3)), "Content-Type", "image/png")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "reference_image_v1.png", decode[map[string]any](t, resp)["filename"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "moodboard.png")
	require.NoError(t, err)
	_, _ = fw.Write(testutils.PNG(4))
	require.NoError(t, mw.Close())

	resp = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/references", "", &buf, "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "reference_image_v2.png", decode[map[string]any](t, resp)["filename"])

	resp = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", "", jsonBody(runner.Request{Input: "poster", Reference: "latest"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testutils.PNG(4), ts.gen.Requests()[0].Reference.Data)
}

func TestAuthBindsSessionsToSubject(t *testing.T) {
	validator := staticValidator{"tok-alice": "alice", "tok-bob": "bob"}
	ts := newTestServer(t, []HTTPServerOption{WithAuthValidator(validator)})

	resp := ts.do(t, http.MethodPost, "/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, "/v1/sessions", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays public.
	resp = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	id := ts.createSession(t, "tok-alice")

	resp = ts.do(t, http.MethodGet, "/v1/sessions/"+id, "tok-alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", decode[session.Info](t, resp).Owner)

	resp = ts.do(t, http.MethodGet, "/v1/sessions/"+id, "tok-bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/v1/sessions/"+id, "tok-bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/sessions", "tok-bob", nil)
	assert.Empty(t, decode[map[string][]session.Info](t, resp)["sessions"])

	resp = ts.do(t, http.MethodDelete, "/v1/sessions/"+id, "tok-alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

type roleValidator map[string]auth.Claims

func (v roleValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	c, ok := v[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &c, nil
}

func TestAssetRolesGateCatalog(t *testing.T) {
	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	ctrl, err := deepthink.New(store, gen, testutils.NewMockReviewer())
	require.NoError(t, err)
	r, err := runner.New(runner.Config{Store: store, Generator: gen, Controller: ctrl})
	require.NoError(t, err)

	cfg := &config.ServerConfig{Auth: &config.AuthConfig{AssetRoles: []string{"marketing"}}}
	validator := roleValidator{
		"tok-mkt": {Subject: "m", Role: "marketing"},
		"tok-dev": {Subject: "d", Role: "developer"},
	}
	srv := NewHTTPServer(cfg, r, nil, WithAuthValidator(validator))
	ts := &testServer{Server: httptest.NewServer(srv.Handler())}
	t.Cleanup(ts.Close)

	resp := ts.do(t, http.MethodGet, "/v1/assets", "tok-dev", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/assets", "tok-mkt", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Sessions are not role gated.
	resp = ts.do(t, http.MethodPost, "/v1/sessions", "tok-dev", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestStartAndShutdown(t *testing.T) {
	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	ctrl, err := deepthink.New(store, gen, testutils.NewMockReviewer())
	require.NoError(t, err)
	r, err := runner.New(runner.Config{Store: store, Generator: gen, Controller: ctrl})
	require.NoError(t, err)

	srv := NewHTTPServer(&config.ServerConfig{Host: "127.0.0.1", Port: 9}, r, nil)
	assert.Equal(t, "127.0.0.1:9", srv.Address())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
