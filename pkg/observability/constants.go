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

package observability

const (
	AttrAssetName    = "asset.name"
	AttrAssetVersion = "asset.version"
	AttrBackend      = "backend"
	AttrAttempt      = "deepthink.attempt"
	AttrRunID        = "deepthink.run_id"
	AttrStopReason   = "deepthink.stop_reason"
	AttrScore        = "review.score"
	AttrAccepted     = "review.accepted"
	AttrSessionID    = "session.id"
	AttrErrorType    = "error.type"
	AttrStatusCode   = "http.status_code"

	SpanDeepThinkRun = "deepthink.run"
	SpanGenerate     = "imagegen.generate"
	SpanReview       = "review.review"
	SpanHTTPRequest  = "http.request"

	DefaultServiceName  = "postforge"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
