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
	"fmt"
	"strings"

	"github.com/kadirpekel/postforge/pkg/asset"
)

// AssetSummary describes one asset.
type AssetSummary struct {
	Name     string `json:"name"`
	Versions int    `json:"versions"`
	Latest   int    `json:"latest"`
	Filename string `json:"filename"`
}

// Assets summarizes every asset except reference uploads.
func (r *Runner) Assets(ctx context.Context) ([]AssetSummary, error) {
	names, err := r.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	var out []AssetSummary
	for _, name := range names {
		if name == asset.ReferenceAsset {
			continue
		}
		versions, err := r.store.ListVersions(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to list versions of %s: %w", name, err)
		}
		if len(versions) == 0 {
			continue
		}
		latest := versions[len(versions)-1]
		out = append(out, AssetSummary{
			Name:     name,
			Versions: len(versions),
			Latest:   latest.Index,
			Filename: latest.Filename(),
		})
	}
	return out, nil
}

// References lists the reference uploads, oldest first.
func (r *Runner) References(ctx context.Context) ([]*asset.Version, error) {
	versions, err := r.store.ListVersions(ctx, asset.ReferenceAsset)
	if errors.Is(err, asset.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reference images: %w", err)
	}
	return versions, nil
}

// DescribeAssets renders the asset summary shown to users.
func (r *Runner) DescribeAssets(ctx context.Context) (string, error) {
	assets, err := r.Assets(ctx)
	if err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "No marketing assets have been created yet.", nil
	}

	lines := []string{"Current marketing assets:"}
	for _, a := range assets {
		lines = append(lines, fmt.Sprintf("  • %s: %d version(s), latest is v%d (%s)", a.Name, a.Versions, a.Latest, a.Filename))
	}
	return strings.Join(lines, "\n"), nil
}

// DescribeReferences renders the reference upload summary.
func (r *Runner) DescribeReferences(ctx context.Context) (string, error) {
	refs, err := r.References(ctx)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "No reference images have been uploaded yet.", nil
	}

	lines := []string{"Available reference images:"}
	for _, v := range refs {
		lines = append(lines, fmt.Sprintf("  • %s (reference v%d)", v.Filename(), v.Index))
	}
	return strings.Join(lines, "\n"), nil
}
