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

// Package runner handles user requests within sessions.
//
// The Runner routes each request to Regular or Deep-Think mode:
//   - Regular mode makes one generate or edit call and stores the result.
//   - Deep-Think mode hands the brief to the iteration controller.
//
// Reference uploads and imports go through the Runner as well, so every
// version written on behalf of a user is recorded in the session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/observability"
	"github.com/kadirpekel/postforge/pkg/router"
	"github.com/kadirpekel/postforge/pkg/session"
)

// DefaultAssetName names fresh generations when the request leaves it empty.
const DefaultAssetName = "marketing_post"

// LatestReference selects the most recent reference upload.
const LatestReference = "latest"

var (
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNothingToEdit is returned for an edit when the session has not
	// produced an image yet and no base filename was given.
	ErrNothingToEdit = errors.New("no image to edit")
)

// Config contains the configuration for creating a Runner.
type Config struct {
	// Store holds every asset version (SOURCE OF TRUTH).
	Store asset.Store

	// Generator serves Regular mode.
	Generator imagegen.Generator

	// Controller serves Deep-Think mode.
	Controller *deepthink.Controller

	// Router picks the mode. Defaults to the "deep think" trigger phrase.
	Router *router.Router

	// Metrics is optional.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runner orchestrates request handling within sessions.
type Runner struct {
	store      asset.Store
	generator  imagegen.Generator
	controller *deepthink.Controller
	router     *router.Router
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a new Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("image generator is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("deep think controller is required")
	}
	if cfg.Router == nil {
		cfg.Router = router.New("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		store:      cfg.Store,
		generator:  cfg.Generator,
		controller: cfg.Controller,
		router:     cfg.Router,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}, nil
}

// Store returns the asset store.
func (r *Runner) Store() asset.Store {
	return r.store
}

// Controller returns the Deep-Think controller.
func (r *Runner) Controller() *deepthink.Controller {
	return r.controller
}

// Request is one user message.
type Request struct {
	// Input is the user's text. The router inspects it for the trigger
	// phrase.
	Input string `json:"input"`

	// AssetName receives the new version. Fresh generations default to
	// DefaultAssetName; edits default to the asset of the base image.
	AssetName string `json:"asset_name,omitempty"`

	AspectRatio string `json:"aspect_ratio,omitempty"`
	TextOverlay string `json:"text_overlay,omitempty"`

	// Reference is "latest" or a reference filename.
	Reference string `json:"reference,omitempty"`

	// Edit applies Input to the session's last generated image.
	Edit bool `json:"edit,omitempty"`

	// BaseFilename edits a specific version, e.g. promo_v2.png.
	BaseFilename string `json:"base_filename,omitempty"`

	// Mode forces a mode. Empty routes on the trigger phrase.
	Mode router.Mode `json:"mode,omitempty"`

	// MaxAttempts overrides the Deep-Think bound when positive.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Observer receives Deep-Think attempts as they are stored.
	Observer deepthink.Observer `json:"-"`
}

// Response is the outcome of one request.
type Response struct {
	Mode router.Mode `json:"mode"`

	// Prompt is the input with the trigger phrase removed.
	Prompt string `json:"prompt"`

	// Version is the newest version written, nil if none.
	Version *asset.Version `json:"version,omitempty"`

	// Filename of Version.
	Filename string `json:"filename,omitempty"`

	// Message is a human readable summary.
	Message string `json:"message"`

	// Run is set in Deep-Think mode.
	Run *deepthink.Result `json:"run,omitempty"`
}

// Handle processes one request. The session serves one request at a time;
// a concurrent call fails with session.ErrSessionBusy.
func (r *Runner) Handle(ctx context.Context, sess *session.Session, req *Request) (*Response, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidRequest)
	}
	if err := sess.TryAcquire(); err != nil {
		return nil, err
	}
	defer sess.Release()

	route := r.router.Route(req.Input)
	switch req.Mode {
	case "":
	case router.ModeRegular, router.ModeDeepThink:
		route.Mode = req.Mode
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if route.Prompt == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, imagegen.ErrEmptyPrompt)
	}

	logger := r.logger.With("session", sess.ID, "mode", route.Mode)
	logger.Info("Handling request", "prompt", route.Prompt)

	var (
		resp *Response
		err  error
	)
	if route.Mode == router.ModeDeepThink {
		resp, err = r.deepThink(ctx, sess, route, req)
	} else {
		resp, err = r.regular(ctx, sess, route, req)
	}

	turn := session.Turn{Input: req.Input, Mode: string(route.Mode)}
	if resp != nil {
		turn.Filename = resp.Filename
		if resp.Run != nil {
			turn.StopReason = string(resp.Run.StopReason)
		}
	}
	if err != nil {
		turn.Error = err.Error()
		logger.Warn("Request failed", "error", err)
	}
	sess.Record(turn)

	return resp, err
}

func (r *Runner) regular(ctx context.Context, sess *session.Session, route router.Route, req *Request) (*Response, error) {
	ref, err := r.resolveReference(ctx, sess, req.Reference)
	if err != nil {
		return nil, err
	}

	genReq := &imagegen.Request{
		Prompt:      route.Prompt,
		AspectRatio: req.AspectRatio,
		TextOverlay: req.TextOverlay,
		Reference:   ref,
	}

	name := req.AssetName
	source := asset.SourceGenerated
	if req.Edit || req.BaseFilename != "" {
		base, err := r.resolveBase(ctx, sess, req.BaseFilename)
		if err != nil {
			return nil, err
		}
		genReq.Prior = &imagegen.Image{Data: base.Data, MIMEType: base.MIMEType}
		source = asset.SourceEdited
		if name == "" {
			name = base.Name
		}
	}
	if name == "" {
		name = DefaultAssetName
	}
	if err := validateTarget(name); err != nil {
		return nil, err
	}

	res, err := r.generate(ctx, genReq)
	if err != nil {
		return nil, err
	}

	version, err := r.createVersion(ctx, name, res.Image.Data, source)
	if err != nil {
		return nil, err
	}
	sess.SetGenerated(version.Name, version.Filename())

	verb := "generated"
	if source == asset.SourceEdited {
		verb = "edited"
	}
	return &Response{
		Mode:     route.Mode,
		Prompt:   route.Prompt,
		Version:  version,
		Filename: version.Filename(),
		Message: fmt.Sprintf("Image %s successfully! Saved as artifact: %s (version %d of %s)",
			verb, version.Filename(), version.Index, version.Name),
	}, nil
}

func (r *Runner) deepThink(ctx context.Context, sess *session.Session, route router.Route, req *Request) (*Response, error) {
	ref, err := r.resolveReference(ctx, sess, req.Reference)
	if err != nil {
		return nil, err
	}

	name := req.AssetName
	if name == "" {
		name = DefaultAssetName
	}

	result, err := r.controller.Run(ctx, &deepthink.Request{
		Brief:       route.Prompt,
		AssetName:   name,
		Reference:   ref,
		AspectRatio: req.AspectRatio,
		TextOverlay: req.TextOverlay,
		MaxAttempts: req.MaxAttempts,
		Observer:    req.Observer,
	})
	if errors.Is(err, deepthink.ErrInvalidRequest) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	resp := &Response{Mode: route.Mode, Prompt: route.Prompt, Run: result}
	if result != nil && result.Final != nil {
		resp.Version = result.Final
		resp.Filename = result.Final.Filename()
		sess.SetGenerated(result.Final.Name, resp.Filename)
	}
	if err != nil {
		return resp, err
	}
	resp.Message = describeRun(result)
	return resp, nil
}

func describeRun(result *deepthink.Result) string {
	if result.Final == nil {
		return fmt.Sprintf("Deep think mode stopped without producing an image: %s (%v)", result.StopReason, result.Err)
	}

	msg := fmt.Sprintf("Deep think mode complete: %s after %d attempt(s). Final marketing content: %s",
		result.StopReason, len(result.History), result.Final.Filename())
	if result.Err != nil {
		msg += fmt.Sprintf(" (last error: %v)", result.Err)
	}
	return msg
}

// generate calls the image adapter, retrying once.
func (r *Runner) generate(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.generator.Generate(ctx, req)
		if err == nil && (res == nil || res.Image == nil || len(res.Image.Data) == 0) {
			err = imagegen.ErrNoImage
		}
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.logger.Warn("Image generation failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("image generation failed: %w", lastErr)
}

// createVersion writes a version, retrying once on an index conflict.
func (r *Runner) createVersion(ctx context.Context, name string, data []byte, source asset.Source) (*asset.Version, error) {
	v, err := r.store.CreateVersion(ctx, name, data, source)
	if errors.Is(err, asset.ErrNameConflict) {
		r.logger.Warn("Version conflict, retrying", "asset", name)
		v, err = r.store.CreateVersion(ctx, name, data, source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", name, err)
	}
	r.metrics.RecordVersion(ctx, string(v.Source))
	r.logger.Info("Stored version", "asset", v.Name, "version", v.Index, "source", v.Source)
	return v, nil
}

// resolveBase loads the image an edit applies to.
func (r *Runner) resolveBase(ctx context.Context, sess *session.Session, filename string) (*asset.Version, error) {
	if filename == "" {
		filename = sess.LastGenerated()
	}
	if filename == "" {
		return nil, ErrNothingToEdit
	}
	return r.Load(ctx, filename)
}

// resolveReference loads "latest" or a named reference image.
func (r *Runner) resolveReference(ctx context.Context, sess *session.Session, ref string) (*imagegen.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	var (
		v   *asset.Version
		err error
	)
	if strings.EqualFold(ref, LatestReference) {
		if name := sess.LatestReference(); name != "" {
			v, err = r.Load(ctx, name)
		} else {
			v, err = r.store.GetVersion(ctx, asset.ReferenceAsset, asset.Latest)
		}
	} else {
		// Only uploads count as references; generated versions are edited,
		// not referenced.
		name, index, perr := asset.ParseFilename(ref)
		switch {
		case perr != nil:
			err = perr
		case name != asset.ReferenceAsset:
			return nil, fmt.Errorf("%w: %s is not a reference image (expected %s_vN.png)", ErrInvalidRequest, ref, asset.ReferenceAsset)
		default:
			v, err = r.store.GetVersion(ctx, name, index)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference image %s: %w", ref, err)
	}
	return &imagegen.Image{Data: v.Data, MIMEType: v.MIMEType}, nil
}

// Load returns the version named by a filename such as promo_v2.png.
func (r *Runner) Load(ctx context.Context, filename string) (*asset.Version, error) {
	name, index, err := asset.ParseFilename(filename)
	if err != nil {
		return nil, err
	}
	return r.store.GetVersion(ctx, name, index)
}

// UploadReference stores a reference image under the reserved
// reference_image asset. sess may be nil.
func (r *Runner) UploadReference(ctx context.Context, sess *session.Session, data []byte) (*asset.Version, error) {
	v, err := r.createVersion(ctx, asset.ReferenceAsset, data, asset.SourceReference)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		sess.SetLatestReference(v.Filename())
	}
	return v, nil
}

// Import stores an existing image as a new version of name.
func (r *Runner) Import(ctx context.Context, name string, data []byte) (*asset.Version, error) {
	if err := validateTarget(name); err != nil {
		return nil, err
	}
	return r.createVersion(ctx, name, data, asset.SourceUploaded)
}

func validateTarget(name string) error {
	if err := asset.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if name == asset.ReferenceAsset {
		return fmt.Errorf("%w: %s is reserved for reference uploads", ErrInvalidRequest, asset.ReferenceAsset)
	}
	return nil
}
