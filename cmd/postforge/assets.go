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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kadirpekel/postforge/pkg/asset"
)

// withStore loads config, opens the asset store and runs fn against it.
func (c *CLI) withStore(fn func(ctx context.Context, store asset.Store) error) error {
	ctx := context.Background()

	cfg, loader, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	a, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return fn(ctx, a.store)
}

// AssetsCmd groups the asset commands.
type AssetsCmd struct {
	List     AssetsListCmd     `cmd:"" help:"List assets with their latest version."`
	Versions AssetsVersionsCmd `cmd:"" help:"List every version of an asset."`
	Export   AssetsExportCmd   `cmd:"" help:"Write a stored version to a file."`
	Import   AssetsImportCmd   `cmd:"" help:"Store an image file as a new version."`
}

// AssetsListCmd lists assets.
type AssetsListCmd struct{}

func (c *AssetsListCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		out := cli.stdout()
		names, err := store.ListAssets(ctx)
		if err != nil {
			return err
		}

		printTitle(out, "Assets")
		shown := 0
		for _, name := range names {
			if name == asset.ReferenceAsset {
				continue
			}
			latest, err := store.GetVersion(ctx, name, asset.Latest)
			if err != nil {
				return err
			}
			printKV(out, name, fmt.Sprintf("%d version(s), latest %s", latest.Index, latest.Filename()))
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, styleMuted.Render("  No marketing assets have been created yet."))
		}
		return nil
	})
}

// AssetsVersionsCmd lists the versions of one asset.
type AssetsVersionsCmd struct {
	Name string `arg:"" help:"Asset name."`
}

func (c *AssetsVersionsCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		out := cli.stdout()
		versions, err := store.ListVersions(ctx, c.Name)
		if err != nil {
			return err
		}

		printTitle(out, c.Name)
		for _, v := range versions {
			fmt.Fprintf(out, "  %-28s %-10s %8d bytes  %s\n",
				v.Filename(), v.Source, v.Size, styleMuted.Render(v.CreatedAt.Format("2006-01-02 15:04:05")))
		}
		return nil
	})
}

// AssetsExportCmd writes a version to disk.
type AssetsExportCmd struct {
	Filename string `arg:"" help:"Versioned filename, e.g. promo_v2.png. Use name_vlatest for the newest."`
	Output   string `short:"o" help:"Destination path. Defaults to the versioned filename in the current directory." type:"path"`
}

func (c *AssetsExportCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		name, index, err := parseExportTarget(c.Filename)
		if err != nil {
			return err
		}
		v, err := store.GetVersion(ctx, name, index)
		if err != nil {
			return err
		}

		dest := c.Output
		if dest == "" {
			dest = v.Filename()
		}
		if err := os.WriteFile(dest, v.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		printSuccess(cli.stdout(), fmt.Sprintf("Exported %s to %s", v.Filename(), dest))
		return nil
	})
}

// parseExportTarget accepts name_vN.png and name_vlatest.
func parseExportTarget(s string) (string, int, error) {
	name, index, err := asset.ParseFilename(s)
	if err == nil {
		return name, index, nil
	}
	base := filepath.Base(s)
	if n := len(base) - len("_vlatest"); n > 0 && base[n:] == "_vlatest" {
		return base[:n], asset.Latest, nil
	}
	return "", 0, err
}

// AssetsImportCmd stores an existing image.
type AssetsImportCmd struct {
	Name string `arg:"" help:"Asset name."`
	File string `arg:"" help:"Image file to import." type:"existingfile"`
}

func (c *AssetsImportCmd) Run(cli *CLI) error {
	if c.Name == asset.ReferenceAsset {
		return fmt.Errorf("%s is reserved; use 'postforge reference add'", asset.ReferenceAsset)
	}
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		return storeFile(ctx, cli, store, c.Name, c.File, asset.SourceUploaded)
	})
}

// ReferenceCmd groups the reference image commands.
type ReferenceCmd struct {
	Add  ReferenceAddCmd  `cmd:"" help:"Upload a reference image."`
	List ReferenceListCmd `cmd:"" help:"List uploaded reference images."`
}

// ReferenceAddCmd uploads a reference image.
type ReferenceAddCmd struct {
	File string `arg:"" help:"Image file." type:"existingfile"`
}

func (c *ReferenceAddCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		return storeFile(ctx, cli, store, asset.ReferenceAsset, c.File, asset.SourceReference)
	})
}

// ReferenceListCmd lists reference images.
type ReferenceListCmd struct{}

func (c *ReferenceListCmd) Run(cli *CLI) error {
	return cli.withStore(func(ctx context.Context, store asset.Store) error {
		out := cli.stdout()
		versions, err := store.ListVersions(ctx, asset.ReferenceAsset)
		if err != nil && !errors.Is(err, asset.ErrNotFound) {
			return err
		}

		printTitle(out, "Reference images")
		if len(versions) == 0 {
			fmt.Fprintln(out, styleMuted.Render("  No reference images have been uploaded yet."))
			return nil
		}
		for _, v := range versions {
			fmt.Fprintf(out, "  %s (reference v%d)\n", v.Filename(), v.Index)
		}
		return nil
	})
}

func storeFile(ctx context.Context, cli *CLI, store asset.Store, name, path string, source asset.Source) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := store.CreateVersion(ctx, name, data, source)
	if err != nil {
		return err
	}
	printSuccess(cli.stdout(), fmt.Sprintf("Stored %s as %s", filepath.Base(path), v.Filename()))
	return nil
}
