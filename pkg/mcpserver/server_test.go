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

package mcpserver

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/testutils"
)

func newServer(t *testing.T, verdicts ...*review.Verdict) (*Server, *runner.Runner, *testutils.MockGenerator) {
	t.Helper()
	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	ctrl, err := deepthink.New(store, gen, testutils.NewMockReviewer(verdicts...), deepthink.WithMaxAttempts(3))
	require.NoError(t, err)
	r, err := runner.New(runner.Config{Store: store, Generator: gen, Controller: ctrl})
	require.NoError(t, err)
	return New(r, "postforge", "test", nil), r, gen
}

func call(t *testing.T, s *Server, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	st := s.MCPServer().GetTool(tool)
	require.NotNil(t, st, tool)

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestTools_Registered(t *testing.T) {
	s, _, _ := newServer(t)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"generate_image", "edit_image", "deep_think", "list_asset_versions", "list_reference_images", "load_asset"} {
		assert.Contains(t, tools, name)
	}
}

func TestGenerateAndEdit(t *testing.T) {
	s, _, gen := newServer(t)

	res := call(t, s, "generate_image", map[string]any{"prompt": "deep think a summer banner", "asset_name": "summer"})
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "summer_v1.png")
	require.Len(t, res.Content, 2)
	img, ok := res.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString(testutils.PNG(1)), img.Data)

	// The tool always runs one generation, even with the trigger phrase.
	assert.Equal(t, 1, gen.Calls())

	res = call(t, s, "edit_image", map[string]any{"artifact_filename": "summer_v1.png", "prompt": "add sunglasses"})
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "Image edited successfully! Saved as artifact: summer_v2.png")
	assert.Equal(t, "summer_v2.png", s.Session().LastGenerated())

	res = call(t, s, "edit_image", map[string]any{"artifact_filename": "ghost_v1.png", "prompt": "x"})
	assert.True(t, res.IsError)

	res = call(t, s, "generate_image", map[string]any{})
	assert.True(t, res.IsError)
}

func TestDeepThinkTool(t *testing.T) {
	s, _, _ := newServer(t, testutils.Reject(0.5, "blurry"), testutils.Accept())

	res := call(t, s, "deep_think", map[string]any{"brief": "holiday poster", "asset_name": "holiday", "max_attempts": 3})
	require.False(t, res.IsError, text(t, res))

	out := text(t, res)
	assert.Contains(t, out, "Deep think mode complete: accepted")
	assert.Contains(t, out, "1. holiday_v1.png: score 0.50, accepted=false")
	assert.Contains(t, out, "2. holiday_v2.png: score 0.90, accepted=true")
}

func TestListAndLoad(t *testing.T) {
	s, r, _ := newServer(t)
	ctx := context.Background()

	res := call(t, s, "list_asset_versions", nil)
	assert.Equal(t, "No marketing assets have been created yet.", text(t, res))

	_, err := r.Import(ctx, "promo", testutils.PNG(5))
	require.NoError(t, err)
	_, err = r.UploadReference(ctx, nil, testutils.PNG(6))
	require.NoError(t, err)

	res = call(t, s, "list_asset_versions", nil)
	assert.Contains(t, text(t, res), "promo: 1 version(s), latest is v1 (promo_v1.png)")
	assert.NotNil(t, res.StructuredContent)

	res = call(t, s, "list_reference_images", nil)
	assert.Contains(t, text(t, res), "reference_image_v1.png (reference v1)")

	res = call(t, s, "load_asset", map[string]any{"filename": "promo_v1.png"})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString(testutils.PNG(5)), res.Content[1].(mcp.ImageContent).Data)

	res = call(t, s, "load_asset", map[string]any{"filename": "reference_image_v1.png"})
	assert.Equal(t, "reference_image_v1.png (reference v1)", text(t, res))

	res = call(t, s, "load_asset", map[string]any{"filename": "promo_v7.png"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Could not find image artifact")
}
