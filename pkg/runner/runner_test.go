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

package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/router"
	"github.com/kadirpekel/postforge/pkg/session"
	"github.com/kadirpekel/postforge/pkg/testutils"
)

type fixture struct {
	runner   *Runner
	store    asset.Store
	gen      *testutils.MockGenerator
	reviewer *testutils.MockReviewer
	sess     *session.Session
}

func newFixture(t *testing.T, verdicts ...*review.Verdict) *fixture {
	t.Helper()

	store := asset.NewMemoryStore()
	gen := testutils.NewMockGenerator()
	rev := testutils.NewMockReviewer(verdicts...)

	ctrl, err := deepthink.New(store, gen, rev, deepthink.WithMaxAttempts(3))
	require.NoError(t, err)

	r, err := New(Config{Store: store, Generator: gen, Controller: ctrl})
	require.NoError(t, err)

	return &fixture{runner: r, store: store, gen: gen, reviewer: rev, sess: session.New("", "tester")}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandle_RegularGenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.runner.Handle(ctx, f.sess, &Request{Input: "create a spring sale poster", AspectRatio: "16:9"})
	require.NoError(t, err)

	assert.Equal(t, router.ModeRegular, resp.Mode)
	assert.Equal(t, "marketing_post_v1.png", resp.Filename)
	assert.Equal(t, asset.SourceGenerated, resp.Version.Source)
	assert.Equal(t, "Image generated successfully! Saved as artifact: marketing_post_v1.png (version 1 of marketing_post)", resp.Message)
	assert.Nil(t, resp.Run)

	assert.Zero(t, f.reviewer.Calls())
	assert.Equal(t, "marketing_post", f.sess.CurrentAsset())
	assert.Equal(t, "marketing_post_v1.png", f.sess.LastGenerated())

	reqs := f.gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "create a spring sale poster", reqs[0].Prompt)
	assert.Equal(t, "16:9", reqs[0].AspectRatio)
	assert.Nil(t, reqs[0].Prior)

	turns := f.sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "marketing_post_v1.png", turns[0].Filename)
}

func TestHandle_RegularEditUsesLastGenerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Handle(ctx, f.sess, &Request{Input: "a poster", AssetName: "promo"})
	require.NoError(t, err)

	resp, err := f.runner.Handle(ctx, f.sess, &Request{Input: "make the headline red", Edit: true})
	require.NoError(t, err)

	assert.Equal(t, "promo_v2.png", resp.Filename)
	assert.Equal(t, asset.SourceEdited, resp.Version.Source)
	assert.Contains(t, resp.Message, "Image edited successfully!")

	reqs := f.gen.Requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[1].Prior)
	assert.Equal(t, testutils.PNG(1), reqs[1].Prior.Data)
	assert.Zero(t, f.reviewer.Calls())
}

func TestHandle_RegularEditExplicitBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.runner.Import(ctx, "banner", testutils.PNG(100+i))
		require.NoError(t, err)
	}

	resp, err := f.runner.Handle(ctx, f.sess, &Request{Input: "crop tighter", BaseFilename: "banner_v1.png"})
	require.NoError(t, err)
	assert.Equal(t, "banner_v3.png", resp.Filename)
	assert.Equal(t, testutils.PNG(100), f.gen.Requests()[0].Prior.Data)

	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "crop", BaseFilename: "banner_v9.png"})
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestHandle_EditWithoutImage(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Handle(context.Background(), f.sess, &Request{Input: "brighter", Edit: true})
	assert.ErrorIs(t, err, ErrNothingToEdit)
	assert.Zero(t, f.gen.Calls())

	turns := f.sess.Turns()
	require.Len(t, turns, 1)
	assert.NotEmpty(t, turns[0].Error)
}

func TestHandle_References(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Handle(ctx, f.sess, &Request{Input: "poster", Reference: "latest"})
	assert.ErrorIs(t, err, asset.ErrNotFound)

	v1, err := f.runner.UploadReference(ctx, f.sess, testutils.PNG(7))
	require.NoError(t, err)
	assert.Equal(t, "reference_image_v1.png", v1.Filename())
	assert.Equal(t, asset.SourceReference, v1.Source)
	_, err = f.runner.UploadReference(ctx, nil, testutils.PNG(8))
	require.NoError(t, err)

	// The session's own upload wins over a newer upload from elsewhere.
	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "poster", Reference: "latest"})
	require.NoError(t, err)
	assert.Equal(t, testutils.PNG(7), f.gen.Requests()[0].Reference.Data)

	other := session.New("", "someone")
	_, err = f.runner.Handle(ctx, other, &Request{Input: "poster", Reference: "LATEST"})
	require.NoError(t, err)
	assert.Equal(t, testutils.PNG(8), f.gen.Requests()[1].Reference.Data)

	_, err = f.runner.Handle(ctx, other, &Request{Input: "poster", Reference: "reference_image_v1.png"})
	require.NoError(t, err)
	assert.Equal(t, testutils.PNG(7), f.gen.Requests()[2].Reference.Data)

	// Generated versions cannot stand in for references.
	gen, err := f.runner.Handle(ctx, other, &Request{Input: "poster"})
	require.NoError(t, err)
	calls := f.gen.Calls()
	_, err = f.runner.Handle(ctx, other, &Request{Input: "poster", Reference: gen.Filename})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, calls, f.gen.Calls())
}

func TestHandle_DeepThink(t *testing.T) {
	f := newFixture(t,
		testutils.Reject(0.4, "headline misspelt"),
		testutils.Reject(0.6, "logo too small"),
		testutils.Accept(),
	)
	ctx := context.Background()

	resp, err := f.runner.Handle(ctx, f.sess, &Request{
		Input:     "Deep think create holiday_promotion poster",
		AssetName: "holiday_promotion",
	})
	require.NoError(t, err)

	assert.Equal(t, router.ModeDeepThink, resp.Mode)
	assert.Equal(t, "create holiday_promotion poster", resp.Prompt)
	require.NotNil(t, resp.Run)
	assert.Equal(t, deepthink.StopAccepted, resp.Run.StopReason)
	assert.Len(t, resp.Run.History, 3)
	assert.Equal(t, "holiday_promotion_v3.png", resp.Filename)
	assert.Contains(t, resp.Message, "Deep think mode complete: accepted")
	assert.Equal(t, "holiday_promotion_v3.png", f.sess.LastGenerated())

	for i := 1; i <= 3; i++ {
		_, err := f.store.GetVersion(ctx, "holiday_promotion", i)
		assert.NoError(t, err)
	}
	assert.Equal(t, "accepted", f.sess.Turns()[0].StopReason)
}

func TestHandle_DeepThinkFlagAndOverride(t *testing.T) {
	f := newFixture(t, testutils.Reject(0.1, "a"), testutils.Reject(0.2, "b"), testutils.Reject(0.3, "c"))

	resp, err := f.runner.Handle(context.Background(), f.sess, &Request{Input: "poster", Mode: router.ModeDeepThink, MaxAttempts: 2})
	require.NoError(t, err)
	assert.Equal(t, deepthink.StopMaxIterations, resp.Run.StopReason)
	assert.Equal(t, 2, f.gen.Calls())
}

func TestHandle_DeepThinkGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.gen.Errors = []error{errors.New("down"), errors.New("down")}

	resp, err := f.runner.Handle(context.Background(), f.sess, &Request{Input: "deep think poster", AssetName: "promo"})
	require.NoError(t, err)
	assert.Equal(t, deepthink.StopGenerationFailed, resp.Run.StopReason)
	assert.Empty(t, resp.Filename)
	assert.Contains(t, resp.Message, "without producing an image")

	_, err = f.store.ListVersions(context.Background(), "promo")
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestHandle_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Handle(ctx, f.sess, &Request{Input: "  deep think  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "poster", AssetName: "bad name"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "poster", AssetName: asset.ReferenceAsset})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "deep think poster", AssetName: asset.ReferenceAsset})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Handle(ctx, f.sess, &Request{Input: "poster", Mode: "turbo"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Handle(ctx, nil, &Request{Input: "poster"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHandle_ForcedRegularIgnoresTrigger(t *testing.T) {
	f := newFixture(t)
	resp, err := f.runner.Handle(context.Background(), f.sess, &Request{Input: "deep think poster", Mode: router.ModeRegular})
	require.NoError(t, err)
	assert.Equal(t, router.ModeRegular, resp.Mode)
	assert.Equal(t, "poster", resp.Prompt)
	assert.Zero(t, f.reviewer.Calls())
}

func TestHandle_SessionBusy(t *testing.T) {
	f := newFixture(t)
	f.gen.Delay = 200 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 1 {
				time.Sleep(50 * time.Millisecond)
			}
			_, errs[i] = f.runner.Handle(ctx, f.sess, &Request{Input: "poster"})
		}(i)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], session.ErrSessionBusy)
	assert.False(t, f.sess.Busy())
}

func TestRegularGenerationRetry(t *testing.T) {
	f := newFixture(t)
	f.gen.Errors = []error{errors.New("flaky")}

	resp, err := f.runner.Handle(context.Background(), f.sess, &Request{Input: "poster"})
	require.NoError(t, err)
	assert.Equal(t, "marketing_post_v1.png", resp.Filename)
	assert.Equal(t, 2, f.gen.Calls())

	f.gen.Errors = []error{errors.New("down"), errors.New("down")}
	_, err = f.runner.Handle(context.Background(), f.sess, &Request{Input: "poster"})
	assert.ErrorContains(t, err, "down")
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.runner.Import(ctx, "logo", testutils.PNG(1))
	require.NoError(t, err)
	assert.Equal(t, asset.SourceUploaded, v.Source)

	_, err = f.runner.Import(ctx, asset.ReferenceAsset, testutils.PNG(1))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.runner.Import(ctx, "logo", nil)
	assert.ErrorIs(t, err, asset.ErrEmptyData)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text, err := f.runner.DescribeAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No marketing assets have been created yet.", text)

	text, err = f.runner.DescribeReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No reference images have been uploaded yet.", text)

	for i := 0; i < 2; i++ {
		_, err = f.runner.Import(ctx, "promo", testutils.PNG(i+1))
		require.NoError(t, err)
	}
	_, err = f.runner.Import(ctx, "banner", testutils.PNG(9))
	require.NoError(t, err)
	_, err = f.runner.UploadReference(ctx, nil, testutils.PNG(5))
	require.NoError(t, err)

	text, err = f.runner.DescribeAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Current marketing assets:\n"+
		"  • banner: 1 version(s), latest is v1 (banner_v1.png)\n"+
		"  • promo: 2 version(s), latest is v2 (promo_v2.png)", text)

	text, err = f.runner.DescribeReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Available reference images:\n  • reference_image_v1.png (reference v1)", text)
}
