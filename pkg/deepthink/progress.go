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
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kadirpekel/postforge/pkg/review"
)

// Progress classifies a verdict against its predecessor.
type Progress string

const (
	ProgressFirst      Progress = "first"
	ProgressImproved   Progress = "improved"
	ProgressChanged    Progress = "changed"
	ProgressEquivalent Progress = "equivalent"
	ProgressDegraded   Progress = "degraded"
)

// Stalled reports whether p counts toward the no-progress guard.
func (p Progress) Stalled() bool {
	return p == ProgressEquivalent || p == ProgressDegraded
}

// Default progress thresholds.
const (
	DefaultSimilarityCutoff = 0.9
	DefaultScoreEpsilon     = 0.01
)

// ProgressJudge decides whether successive verdicts show progress.
//
// Two verdicts are equivalent when their scores differ by less than
// ScoreEpsilon and their feedback texts are at least SimilarityCutoff
// similar. A verdict is degrading when its score drops by ScoreEpsilon or
// more.
type ProgressJudge struct {
	SimilarityCutoff float64
	ScoreEpsilon     float64

	dmp *diffmatchpatch.DiffMatchPatch
}

// NewProgressJudge creates a judge. Non-positive arguments select the
// defaults.
func NewProgressJudge(similarityCutoff, scoreEpsilon float64) *ProgressJudge {
	if similarityCutoff <= 0 {
		similarityCutoff = DefaultSimilarityCutoff
	}
	if scoreEpsilon <= 0 {
		scoreEpsilon = DefaultScoreEpsilon
	}
	return &ProgressJudge{
		SimilarityCutoff: similarityCutoff,
		ScoreEpsilon:     scoreEpsilon,
		dmp:              diffmatchpatch.New(),
	}
}

// Compare classifies next relative to prev.
func (j *ProgressJudge) Compare(prev, next *review.Verdict) Progress {
	if prev == nil || next == nil {
		return ProgressFirst
	}

	delta := next.Score - prev.Score
	switch {
	case delta <= -j.ScoreEpsilon:
		return ProgressDegraded
	case delta >= j.ScoreEpsilon:
		return ProgressImproved
	}

	if j.Similarity(prev.Feedback, next.Feedback) >= j.SimilarityCutoff {
		return ProgressEquivalent
	}
	return ProgressChanged
}

// Similarity returns 1 - levenshtein/maxlen over whitespace-normalized,
// lower-cased texts. Two empty texts are identical.
func (j *ProgressJudge) Similarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == b {
		return 1
	}

	longest := math.Max(float64(utf8.RuneCountInString(a)), float64(utf8.RuneCountInString(b)))
	diffs := j.dmp.DiffMain(a, b, false)
	distance := float64(j.dmp.DiffLevenshtein(diffs))
	return 1 - distance/longest
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
