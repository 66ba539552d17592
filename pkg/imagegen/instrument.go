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

package imagegen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/postforge/pkg/observability"
)

const tracerName = "github.com/kadirpekel/postforge/pkg/imagegen"

type instrumented struct {
	Generator
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Instrumented records a span and generation metrics around every call.
// metrics may be nil.
func Instrumented(gen Generator, metrics *observability.Metrics) Generator {
	return &instrumented{
		Generator: gen,
		metrics:   metrics,
		tracer:    observability.GetTracer(tracerName),
	}
}

func (i *instrumented) Generate(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := i.tracer.Start(ctx, observability.SpanGenerate,
		trace.WithAttributes(
			attribute.String(observability.AttrBackend, i.Name()),
			attribute.Bool("imagegen.edit", req.IsEdit()),
			attribute.Bool("imagegen.reference", req.Reference != nil),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := i.Generator.Generate(ctx, req)
	i.metrics.RecordGeneration(ctx, i.Name(), time.Since(start), err)
	observability.RecordError(span, err)

	if result != nil && result.Image != nil {
		span.SetAttributes(attribute.Int("imagegen.bytes", len(result.Image.Data)))
	}
	return result, err
}
