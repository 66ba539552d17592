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
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	Generator
	limiter *rate.Limiter
}

// RateLimited throttles gen to rpm calls per minute with a burst of one.
// A non-positive rpm returns gen unchanged.
func RateLimited(gen Generator, rpm int) Generator {
	if rpm <= 0 {
		return gen
	}
	return &rateLimited{
		Generator: gen,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (r *rateLimited) Generate(ctx context.Context, req *Request) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit wait: %w", r.Name(), err)
	}
	return r.Generator.Generate(ctx, req)
}
