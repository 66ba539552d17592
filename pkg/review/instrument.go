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

package review

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/postforge/pkg/observability"
)

const tracerName = "github.com/kadirpekel/postforge/pkg/review"

type instrumented struct {
	Reviewer
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Instrumented records a span and review metrics around every call.
// metrics may be nil.
func Instrumented(r Reviewer, metrics *observability.Metrics) Reviewer {
	return &instrumented{
		Reviewer: r,
		metrics:  metrics,
		tracer:   observability.GetTracer(tracerName),
	}
}

func (i *instrumented) Review(ctx context.Context, req *Request) (*Verdict, error) {
	ctx, span := i.tracer.Start(ctx, observability.SpanReview,
		trace.WithAttributes(
			attribute.String(observability.AttrBackend, i.Name()),
			attribute.Int(observability.AttrAttempt, req.Iteration),
		),
	)
	defer span.End()

	start := time.Now()
	verdict, err := i.Reviewer.Review(ctx, req)
	accepted := verdict != nil && verdict.Accept
	i.metrics.RecordReview(ctx, i.Name(), time.Since(start), accepted, err)
	observability.RecordError(span, err)

	if verdict != nil {
		span.SetAttributes(
			attribute.Float64(observability.AttrScore, verdict.Score),
			attribute.Bool(observability.AttrAccepted, verdict.Accept),
		)
	}
	return verdict, err
}
