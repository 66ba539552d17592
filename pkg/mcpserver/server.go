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

// Package mcpserver exposes postforge as Model Context Protocol tools.
//
// An MCP client (a desktop assistant or another agent) drives the same
// runner as the HTTP API. The stdio transport serves a single client, so
// the server owns one session for its lifetime.
package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/router"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
)

// Server wraps an MCP server bound to a runner.
type Server struct {
	runner  *runner.Runner
	session *session.Session
	mcp     *server.MCPServer
	logger  *slog.Logger
}

// New creates the MCP server and registers the tools.
func New(r *runner.Runner, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		runner:  r,
		session: session.New("", "mcp"),
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Session returns the session the tools operate in.
func (s *Server) Session() *session.Session {
	return s.session
}

// ServeStdio serves until ctx is cancelled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	s.logger.Info("MCP server listening on stdio", "session", s.session.ID)
	return server.NewStdioServer(s.mcp).Listen(ctx, stdin, stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("generate_image",
		mcp.WithDescription("Generates a new image based on a prompt and other specifications. Each call stores a new version of the asset."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("A detailed description of the image to generate.")),
		mcp.WithString("aspect_ratio", mcp.DefaultString(imagegen.DefaultAspectRatio), mcp.Description("The desired aspect ratio, e.g., '1:1', '16:9'.")),
		mcp.WithString("text_overlay", mcp.Description("Text to overlay on the image.")),
		mcp.WithString("asset_name", mcp.DefaultString(runner.DefaultAssetName), mcp.Description("Base name for the marketing asset (will be versioned automatically).")),
		mcp.WithString("reference_image_filename", mcp.Description("Optional: filename of a reference image to use as inspiration. Use 'latest' to use the most recently uploaded reference image.")),
	), s.handleGenerate)

	s.mcp.AddTool(mcp.NewTool("edit_image",
		mcp.WithDescription("Edits an existing image based on a prompt and stores the result as a new version."),
		mcp.WithString("artifact_filename", mcp.Required(), mcp.Description("The filename of the image to edit, e.g. promo_v2.png.")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The prompt describing the desired changes.")),
		mcp.WithString("asset_name", mcp.Description("Optional: asset name for the new version (defaults to the asset being edited).")),
		mcp.WithString("reference_image_filename", mcp.Description("Optional: filename of a reference image to guide the edit. Use 'latest' to use the most recently uploaded reference image.")),
	), s.handleEdit)

	s.mcp.AddTool(mcp.NewTool("deep_think",
		mcp.WithDescription("Runs the iterative generate, review and refine loop until the image passes review, stops improving, or the attempt budget is spent."),
		mcp.WithString("brief", mcp.Required(), mcp.Description("The creative request.")),
		mcp.WithString("asset_name", mcp.DefaultString(runner.DefaultAssetName), mcp.Description("Asset that receives one version per attempt.")),
		mcp.WithString("aspect_ratio", mcp.Description("The desired aspect ratio, e.g., '1:1', '16:9'.")),
		mcp.WithString("text_overlay", mcp.Description("Text that must appear on the image.")),
		mcp.WithString("reference_image_filename", mcp.Description("Optional: reference image filename or 'latest'.")),
		mcp.WithNumber("max_attempts", mcp.Description("Optional: upper bound on attempts for this run.")),
	), s.handleDeepThink)

	s.mcp.AddTool(mcp.NewTool("list_asset_versions",
		mcp.WithDescription("Lists all marketing asset versions."),
	), s.handleListAssets)

	s.mcp.AddTool(mcp.NewTool("list_reference_images",
		mcp.WithDescription("Lists all uploaded reference images."),
	), s.handleListReferences)

	s.mcp.AddTool(mcp.NewTool("load_asset",
		mcp.WithDescription("Loads a stored image by filename, e.g. promo_v3.png or reference_image_v1.png."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("The versioned filename to load.")),
	), s.handleLoad)
}

func (s *Server) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.handle(ctx, &runner.Request{
		Input:       prompt,
		Mode:        router.ModeRegular,
		AspectRatio: req.GetString("aspect_ratio", imagegen.DefaultAspectRatio),
		TextOverlay: req.GetString("text_overlay", ""),
		AssetName:   req.GetString("asset_name", runner.DefaultAssetName),
		Reference:   req.GetString("reference_image_filename", ""),
	})
}

func (s *Server) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := req.RequireString("artifact_filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.handle(ctx, &runner.Request{
		Input:        prompt,
		Mode:         router.ModeRegular,
		BaseFilename: base,
		AssetName:    req.GetString("asset_name", ""),
		Reference:    req.GetString("reference_image_filename", ""),
	})
}

func (s *Server) handleDeepThink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	brief, err := req.RequireString("brief")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.handle(ctx, &runner.Request{
		Input:       brief,
		Mode:        router.ModeDeepThink,
		AssetName:   req.GetString("asset_name", runner.DefaultAssetName),
		AspectRatio: req.GetString("aspect_ratio", ""),
		TextOverlay: req.GetString("text_overlay", ""),
		Reference:   req.GetString("reference_image_filename", ""),
		MaxAttempts: req.GetInt("max_attempts", 0),
	})
}

func (s *Server) handle(ctx context.Context, req *runner.Request) (*mcp.CallToolResult, error) {
	resp, err := s.runner.Handle(ctx, s.session, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := resp.Message
	if resp.Run != nil {
		text += "\n\n" + describeHistory(resp)
	}
	if resp.Version == nil || len(resp.Version.Data) == 0 {
		return mcp.NewToolResultText(text), nil
	}
	return mcp.NewToolResultImage(text, base64.StdEncoding.EncodeToString(resp.Version.Data), resp.Version.MIMEType), nil
}

func describeHistory(resp *runner.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stop reason: %s\n", resp.Run.StopReason)
	for _, a := range resp.Run.History {
		if a.Verdict == nil {
			fmt.Fprintf(&b, "  %d. %s: review failed\n", a.Number, a.Filename)
			continue
		}
		fmt.Fprintf(&b, "  %d. %s: score %.2f, accepted=%t\n", a.Number, a.Filename, a.Verdict.Score, a.Verdict.Accept)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Server) handleListAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.runner.DescribeAssets(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.withStructured(text, func() (any, error) { return s.runner.Assets(ctx) })
}

func (s *Server) handleListReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.runner.DescribeReferences(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.withStructured(text, func() (any, error) { return s.runner.References(ctx) })
}

// withStructured attaches a JSON rendering for clients that parse results.
func (s *Server) withStructured(text string, load func() (any, error)) (*mcp.CallToolResult, error) {
	v, err := load()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructured(map[string]any{"items": v}, text), nil
}

func (s *Server) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := s.runner.Load(ctx, filename)
	if err != nil {
		s.logger.Warn("Asset not found", "filename", filename, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Could not find image artifact: %s", filename)), nil
	}

	text := fmt.Sprintf("%s (version %d of %s, %s, %d bytes)", v.Filename(), v.Index, v.Name, v.Source, v.Size)
	if v.Name == asset.ReferenceAsset {
		text = fmt.Sprintf("%s (reference v%d)", v.Filename(), v.Index)
	}
	return mcp.NewToolResultImage(text, base64.StdEncoding.EncodeToString(v.Data), v.MIMEType), nil
}
