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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/router"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
)

// RunCmd handles one request end to end and exits.
type RunCmd struct {
	Input []string `arg:"" help:"The request. Include the trigger phrase (\"deep think\" by default) for the iterative loop."`

	Asset       string `short:"a" help:"Asset name to version the result under." default:"marketing_post"`
	Mode        string `short:"m" help:"Force a mode instead of detecting the trigger phrase."`
	AspectRatio string `name:"aspect-ratio" help:"Aspect ratio, e.g. 1:1 or 16:9."`
	Overlay     string `help:"Text that must appear on the image."`
	Reference   string `short:"r" help:"Reference image filename, or 'latest'."`
	Edit        string `help:"Edit this stored version, e.g. promo_v2.png."`
	MaxAttempts int    `name:"max-attempts" help:"Override the attempt budget for a deep think run."`
	Output      string `short:"o" help:"Also write the final image to this path." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := cli.stdout()
	req := &runner.Request{
		Input:        strings.Join(c.Input, " "),
		AssetName:    c.Asset,
		Mode:         router.Mode(c.Mode),
		AspectRatio:  c.AspectRatio,
		TextOverlay:  c.Overlay,
		Reference:    c.Reference,
		BaseFilename: c.Edit,
		MaxAttempts:  c.MaxAttempts,
		Observer: func(at deepthink.Attempt) {
			fmt.Fprintln(out, renderAttempt(at))
		},
	}

	resp, err := a.runner.Handle(ctx, session.New("", ""), req)
	if err != nil {
		return err
	}

	printTitle(out, "Result")
	printKV(out, "mode", string(resp.Mode))
	printKV(out, "prompt", resp.Prompt)
	if resp.Run != nil {
		printKV(out, "stopped", string(resp.Run.StopReason))
	}
	if resp.Filename != "" {
		printKV(out, "artifact", resp.Filename)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, resp.Message)

	if c.Output != "" && resp.Version != nil {
		if err := os.WriteFile(c.Output, resp.Version.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Output, err)
		}
		printSuccess(out, "Wrote "+c.Output)
	}
	return nil
}
