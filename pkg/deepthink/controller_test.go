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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/testutils"
)

func newController(t *testing.T, gen imagegen.Generator, rev review.Reviewer, opts ...Option) (*Controller, asset.Store) {
	t.Helper()
	store := asset.NewMemoryStore()
	c, err := New(store, gen, rev, opts...)
	require.NoError(t, err)
	return c, store
}

func TestRun_AcceptedOnThirdAttempt(t *testing.T) {
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer(
		testutils.Reject(0.5, "the headline is misspelt"),
		testutils.Reject(0.6, "the logo is too small"),
		testutils.Accept(),
	)
	c, store := newController(t, gen, rev)

	res, err := c.Run(context.Background(), &Request{
		Brief:       "create holiday_promotion poster",
		AssetName:   "holiday_promotion",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, StopAccepted, res.StopReason)
	assert.True(t, res.StopReason.Succeeded())
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.History, 3)
	require.NotNil(t, res.Final)
	assert.Equal(t, 3, res.Final.Index)

	for i, a := range res.History {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, i+1, a.VersionIndex)
		assert.Equal(t, asset.Filename("holiday_promotion", i+1), a.Filename)
		assert.NotNil(t, a.Verdict)
	}
	assert.Equal(t, ProgressFirst, res.History[0].Progress)

	versions, err := store.ListVersions(context.Background(), "holiday_promotion")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, asset.SourceGenerated, versions[0].Source)
	assert.Equal(t, asset.SourceEdited, versions[1].Source)
	assert.Equal(t, asset.SourceEdited, versions[2].Source)

	// Later attempts edit the prior version and carry feedback forward.
	reqs := gen.Requests()
	require.Len(t, reqs, 3)
	assert.Nil(t, reqs[0].Prior)
	assert.Equal(t, "create holiday_promotion poster", reqs[0].Prompt)
	require.NotNil(t, reqs[1].Prior)
	assert.Equal(t, testutils.PNG(1), reqs[1].Prior.Data)
	assert.Contains(t, reqs[1].Prompt, "the headline is misspelt")
	assert.Contains(t, reqs[2].Prompt, "the logo is too small")

	reviews := rev.Requests()
	require.Len(t, reviews, 3)
	assert.Equal(t, 2, reviews[1].Iteration)
	assert.Equal(t, "the headline is misspelt", reviews[1].PreviousFeedback)
	assert.Equal(t, review.DefaultRubric(), reviews[0].Rubric)
}

func TestRun_GenerationFailsTwice(t *testing.T) {
	boom := errors.New("model unavailable")
	gen := testutils.NewMockGenerator()
	gen.Errors = []error{boom, boom}
	rev := testutils.NewMockReviewer()
	c, store := newController(t, gen, rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)

	assert.Equal(t, StopGenerationFailed, res.StopReason)
	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, res.History)
	assert.Nil(t, res.Final)
	assert.Equal(t, 2, gen.Calls())
	assert.Zero(t, rev.Calls())

	_, err = store.ListVersions(context.Background(), "promo")
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestRun_GenerationRetrySucceeds(t *testing.T) {
	gen := testutils.NewMockGenerator()
	gen.Errors = []error{errors.New("transient")}
	c, _ := newController(t, gen, testutils.NewMockReviewer())

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopAccepted, res.StopReason)
	assert.Equal(t, 2, gen.Calls())
	require.Len(t, res.History, 1)
}

func TestRun_EmptyImageCountsAsFailure(t *testing.T) {
	gen := testutils.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error) {
		return &imagegen.Result{}, nil
	}
	c, _ := newController(t, gen, testutils.NewMockReviewer())

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopGenerationFailed, res.StopReason)
	assert.ErrorIs(t, res.Err, imagegen.ErrNoImage)
}

func TestRun_MaxIterations(t *testing.T) {
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer(
		testutils.Reject(0.1, "one"),
		testutils.Reject(0.2, "two"),
		testutils.Reject(0.3, "three"),
		testutils.Reject(0.4, "four"),
		testutils.Reject(0.5, "five"),
		testutils.Reject(0.6, "six"),
	)
	c, _ := newController(t, gen, rev, WithMaxAttempts(4))
	assert.Equal(t, 4, c.MaxAttempts())

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopMaxIterations, res.StopReason)
	assert.Len(t, res.History, 4)
	assert.Equal(t, 4, gen.Calls())
	assert.Equal(t, 4, res.Final.Index)
	for _, a := range res.History[1:] {
		assert.Equal(t, ProgressImproved, a.Progress)
	}
}

func TestRun_NoProgressOnRepeatedVerdicts(t *testing.T) {
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer(testutils.Reject(0.5, "the text is unreadable"))
	c, _ := newController(t, gen, rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopNoProgress, res.StopReason)
	require.Len(t, res.History, 3)
	assert.Equal(t, ProgressEquivalent, res.History[1].Progress)
	assert.Equal(t, ProgressEquivalent, res.History[2].Progress)
}

func TestRun_NoProgressOnDegradingVerdicts(t *testing.T) {
	rev := testutils.NewMockReviewer(
		testutils.Reject(0.6, "a"),
		testutils.Reject(0.5, "b"),
		testutils.Reject(0.4, "c"),
	)
	c, _ := newController(t, testutils.NewMockGenerator(), rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopNoProgress, res.StopReason)
	assert.Len(t, res.History, 3)
	assert.Equal(t, ProgressDegraded, res.History[2].Progress)
}

func TestRun_ProgressResetsStall(t *testing.T) {
	rev := testutils.NewMockReviewer(
		testutils.Reject(0.5, "same"),
		testutils.Reject(0.5, "same"),
		testutils.Reject(0.7, "better"),
		testutils.Reject(0.7, "better"),
		testutils.Accept(),
	)
	c, _ := newController(t, testutils.NewMockGenerator(), rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopAccepted, res.StopReason)
	assert.Len(t, res.History, 5)
}

func TestRun_ReviewFailsTwice(t *testing.T) {
	boom := errors.New("review down")
	rev := &testutils.MockReviewer{Steps: []testutils.ReviewStep{{Err: boom}}}
	c, store := newController(t, testutils.NewMockGenerator(), rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopReviewFailed, res.StopReason)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 2, rev.Calls())

	require.Len(t, res.History, 1)
	assert.Nil(t, res.History[0].Verdict)
	require.NotNil(t, res.Final)

	v, err := store.GetVersion(context.Background(), "promo", asset.Latest)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
}

func TestRun_ReviewRetrySucceeds(t *testing.T) {
	rev := &testutils.MockReviewer{Steps: []testutils.ReviewStep{
		{Err: errors.New("flaky")},
		{Verdict: testutils.Accept()},
	}}
	c, _ := newController(t, testutils.NewMockGenerator(), rev)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopAccepted, res.StopReason)
	assert.Equal(t, 2, rev.Calls())
}

func TestRun_CancelledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var observed []Attempt
	rev := testutils.NewMockReviewer(testutils.Reject(0.2, "x"), testutils.Reject(0.4, "y"))
	c, store := newController(t, testutils.NewMockGenerator(), rev, WithObserver(func(a Attempt) {
		observed = append(observed, a)
		cancel()
	}))

	res, err := c.Run(ctx, &Request{Brief: "poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.StopReason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, observed, 1)

	// Partial history stays in the store.
	versions, err := store.ListVersions(context.Background(), "promo")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRun_PassesReferenceAndFormat(t *testing.T) {
	gen := testutils.NewMockGenerator()
	c, _ := newController(t, gen, testutils.NewMockReviewer())

	ref := imagegen.NewImage(testutils.PNG(99))
	_, err := c.Run(context.Background(), &Request{
		Brief:       "poster",
		AssetName:   "promo",
		Reference:   ref,
		AspectRatio: "16:9",
		TextOverlay: "SALE",
	})
	require.NoError(t, err)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Same(t, ref, reqs[0].Reference)
	assert.Equal(t, "16:9", reqs[0].AspectRatio)
	assert.Equal(t, "SALE", reqs[0].TextOverlay)
}

func TestRun_InvalidRequests(t *testing.T) {
	c, _ := newController(t, testutils.NewMockGenerator(), testutils.NewMockReviewer())

	for name, req := range map[string]*Request{
		"no brief":       {AssetName: "promo"},
		"bad name":       {Brief: "x", AssetName: "../etc"},
		"reserved name":  {Brief: "x", AssetName: asset.ReferenceAsset},
		"negative bound": {Brief: "x", AssetName: "promo", MaxAttempts: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Run(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

type failingStore struct {
	asset.Store
}

func (failingStore) CreateVersion(ctx context.Context, name string, data []byte, source asset.Source) (*asset.Version, error) {
	return nil, asset.ErrNameConflict
}

func TestRun_StoreFailure(t *testing.T) {
	c, err := New(failingStore{asset.NewMemoryStore()}, testutils.NewMockGenerator(), testutils.NewMockReviewer())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
	assert.ErrorIs(t, err, asset.ErrNameConflict)
	require.NotNil(t, res)
	assert.Equal(t, StopStoreFailed, res.StopReason)
}

func TestNew_Validation(t *testing.T) {
	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer()

	_, err := New(nil, gen, rev)
	assert.Error(t, err)
	_, err = New(store, nil, rev)
	assert.Error(t, err)
	_, err = New(store, gen, nil)
	assert.Error(t, err)
	_, err = New(store, gen, rev, WithRubric(review.Rubric{}))
	assert.Error(t, err)
}

func TestSetMaxAttempts_Concurrent(t *testing.T) {
	c, _ := newController(t, testutils.NewMockGenerator(), testutils.NewMockReviewer())
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts())

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.SetMaxAttempts(n)
			_ = c.MaxAttempts()
		}(i)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, c.MaxAttempts(), 1)

	c.SetMaxAttempts(0)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts())
}

func TestRun_NeverExceedsMaxAttempts(t *testing.T) {
	for bound := 1; bound <= 6; bound++ {
		gen := testutils.NewMockGenerator()
		rev := &testutils.MockReviewer{}
		for i := 0; i < 10; i++ {
			rev.Steps = append(rev.Steps, testutils.ReviewStep{Verdict: testutils.Reject(0.05*float64(i+1), "attempt")})
		}
		c, _ := newController(t, gen, rev, WithMaxAttempts(bound))

		res, err := c.Run(context.Background(), &Request{Brief: "poster", AssetName: "promo"})
		require.NoError(t, err)
		assert.LessOrEqual(t, gen.Calls(), bound)
		assert.LessOrEqual(t, len(res.History), bound)
	}
}

func TestRun_PerRunObserver(t *testing.T) {
	var global, local []int
	rev := testutils.NewMockReviewer(testutils.Reject(0.3, "x"), testutils.Accept())
	c, _ := newController(t, testutils.NewMockGenerator(), rev, WithObserver(func(a Attempt) {
		global = append(global, a.Number)
	}))

	_, err := c.Run(context.Background(), &Request{
		Brief:     "poster",
		AssetName: "promo",
		Observer:  func(a Attempt) { local = append(local, a.Number) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, global)
	assert.Equal(t, []int{1, 2}, local)
}
