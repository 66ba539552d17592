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

package deepthink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/observability"
	"github.com/kadirpekel/postforge/pkg/review"
)

const tracerName = "github.com/kadirpekel/postforge/pkg/deepthink"

// Controller drives Deep-Think runs.
//
// A Controller is safe for concurrent use; each Run keeps its own State.
type Controller struct {
	store     asset.Store
	generator imagegen.Generator
	reviewer  review.Reviewer

	maxAttempts atomic.Int64
	rubric      review.Rubric
	judge       *ProgressJudge
	observer    Observer
	metrics     *observability.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts sets the loop bound.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		c.SetMaxAttempts(n)
	}
}

// WithRubric sets the rubric handed to the reviewer.
func WithRubric(r review.Rubric) Option {
	return func(c *Controller) {
		c.rubric = r
	}
}

// WithProgressJudge replaces the no-progress judge.
func WithProgressJudge(j *ProgressJudge) Option {
	return func(c *Controller) {
		if j != nil {
			c.judge = j
		}
	}
}

// WithObserver registers a callback invoked after every stored attempt.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithMetrics records run and version metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a controller.
func New(store asset.Store, generator imagegen.Generator, reviewer review.Reviewer, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("image generator is required")
	}
	if reviewer == nil {
		return nil, fmt.Errorf("reviewer is required")
	}

	c := &Controller{
		store:     store,
		generator: generator,
		reviewer:  reviewer,
		rubric:    review.DefaultRubric(),
		judge:     NewProgressJudge(0, 0),
		logger:    slog.Default(),
		tracer:    observability.GetTracer(tracerName),
	}
	c.maxAttempts.Store(DefaultMaxAttempts)

	for _, opt := range opts {
		opt(c)
	}
	if err := c.rubric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rubric: %w", err)
	}
	return c, nil
}

// MaxAttempts returns the current loop bound.
func (c *Controller) MaxAttempts() int {
	return int(c.maxAttempts.Load())
}

// SetMaxAttempts changes the loop bound for runs started afterwards.
// Non-positive values select DefaultMaxAttempts.
func (c *Controller) SetMaxAttempts(n int) {
	if n <= 0 {
		n = DefaultMaxAttempts
	}
	c.maxAttempts.Store(int64(n))
}

// Run executes one Deep-Think run.
//
// Adapter failures and cancellation end the run with a stop reason and
// Result.Err; the returned error is non-nil only for invalid requests and
// store failures. Versions written before the run ended remain in the
// store.
func (c *Controller) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	state := &State{
		AssetName:   req.AssetName,
		MaxAttempts: c.MaxAttempts(),
	}
	if req.MaxAttempts > 0 {
		state.MaxAttempts = req.MaxAttempts
	}

	result := &Result{
		RunID:     uuid.NewString(),
		AssetName: req.AssetName,
	}
	logger := c.logger.With("run", result.RunID, "asset", req.AssetName)

	ctx, span := c.tracer.Start(ctx, observability.SpanDeepThinkRun,
		trace.WithAttributes(
			attribute.String(observability.AttrRunID, result.RunID),
			attribute.String(observability.AttrAssetName, req.AssetName),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.String(observability.AttrStopReason, string(result.StopReason)),
			attribute.Int(observability.AttrAttempt, state.AttemptCount),
		)
		observability.RecordError(span, result.Err)
		c.metrics.RecordRun(ctx, string(result.StopReason), state.AttemptCount, time.Since(start))
	}()

	logger.Info("Deep think run started", "max_attempts", state.MaxAttempts)

	stop := func(reason StopReason, err error) {
		state.StopReason = reason
		result.StopReason = reason
		result.Err = err
		result.Final = state.Current
		logger.Info("Deep think run finished",
			"stop_reason", reason,
			"attempts", state.AttemptCount,
			"error", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			stop(StopCancelled, err)
			return result, nil
		}

		// Generate
		number := state.AttemptCount + 1
		genReq := &imagegen.Request{
			Prompt:      req.Brief,
			AspectRatio: req.AspectRatio,
			TextOverlay: req.TextOverlay,
			Reference:   req.Reference,
		}
		source := asset.SourceGenerated
		if state.Current != nil {
			genReq.Prompt = refinementPrompt(req.Brief, state.LastVerdict)
			genReq.Prior = &imagegen.Image{Data: state.Current.Data, MIMEType: state.Current.MIMEType}
			source = asset.SourceEdited
		}

		gen, err := c.generate(ctx, genReq, logger.With("attempt", number))
		if err != nil {
			if ctx.Err() != nil {
				stop(StopCancelled, err)
			} else {
				stop(StopGenerationFailed, err)
			}
			return result, nil
		}

		version, err := c.store.CreateVersion(ctx, req.AssetName, gen.Image.Data, source)
		if err != nil {
			stop(StopStoreFailed, err)
			return result, fmt.Errorf("failed to store attempt %d: %w", number, err)
		}
		c.metrics.RecordVersion(ctx, string(version.Source))
		state.Current = version
		logger.Info("Stored attempt", "attempt", number, "version", version.Index)

		attempt := Attempt{
			Number:       number,
			VersionIndex: version.Index,
			Filename:     version.Filename(),
			Prompt:       genReq.Prompt,
		}
		if gen.RewrittenPrompt != "" {
			attempt.Prompt = gen.RewrittenPrompt
		}

		// Review
		verdict, err := c.review(ctx, &review.Request{
			Image:            &imagegen.Image{Data: version.Data, MIMEType: version.MIMEType},
			Brief:            req.Brief,
			Rubric:           c.rubric,
			Iteration:        number,
			PreviousFeedback: previousFeedback(state.LastVerdict),
		}, logger.With("attempt", number))

		// Decide
		state.AttemptCount = number
		if err != nil {
			c.record(req, result, attempt)
			if ctx.Err() != nil {
				stop(StopCancelled, err)
			} else {
				stop(StopReviewFailed, err)
			}
			return result, nil
		}

		attempt.Verdict = verdict
		attempt.Progress = c.judge.Compare(state.LastVerdict, verdict)
		c.record(req, result, attempt)
		state.LastVerdict = verdict

		if attempt.Progress.Stalled() {
			state.Stalled++
		} else {
			state.Stalled = 0
		}

		logger.Info("Reviewed attempt",
			"attempt", number,
			"score", verdict.Score,
			"accept", verdict.Accept,
			"progress", attempt.Progress)

		switch {
		case verdict.Accept:
			stop(StopAccepted, nil)
			return result, nil
		case state.AttemptCount >= state.MaxAttempts:
			stop(StopMaxIterations, nil)
			return result, nil
		case state.Stalled >= 2:
			stop(StopNoProgress, nil)
			return result, nil
		}
	}
}

func (c *Controller) record(req *Request, result *Result, attempt Attempt) {
	result.History = append(result.History, attempt)
	if c.observer != nil {
		c.observer(attempt)
	}
	if req.Observer != nil {
		req.Observer(attempt)
	}
}

// generate calls the image adapter, retrying once.
func (c *Controller) generate(ctx context.Context, req *imagegen.Request, logger *slog.Logger) (*imagegen.Result, error) {
	res, err := c.generator.Generate(ctx, req)
	if err == nil && (res == nil || res.Image == nil || len(res.Image.Data) == 0) {
		err = imagegen.ErrNoImage
	}
	if err == nil || ctx.Err() != nil {
		return res, err
	}

	logger.Warn("Image generation failed, retrying", "error", err)
	res, err = c.generator.Generate(ctx, req)
	if err == nil && (res == nil || res.Image == nil || len(res.Image.Data) == 0) {
		err = imagegen.ErrNoImage
	}
	if err != nil {
		return nil, fmt.Errorf("generation failed after retry: %w", err)
	}
	return res, nil
}

// review calls the review adapter, retrying once.
func (c *Controller) review(ctx context.Context, req *review.Request, logger *slog.Logger) (*review.Verdict, error) {
	verdict, err := c.reviewer.Review(ctx, req)
	if err == nil && verdict == nil {
		err = errors.New("reviewer returned no verdict")
	}
	if err == nil || ctx.Err() != nil {
		return verdict, err
	}

	logger.Warn("Review failed, retrying", "error", err)
	verdict, err = c.reviewer.Review(ctx, req)
	if err == nil && verdict == nil {
		err = errors.New("reviewer returned no verdict")
	}
	if err != nil {
		return nil, fmt.Errorf("review failed after retry: %w", err)
	}
	return verdict, nil
}

func previousFeedback(v *review.Verdict) string {
	if v == nil {
		return ""
	}
	return v.Feedback
}
