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

// Command postforge is the CLI for the postforge marketing image studio.
//
// Usage:
//
//	postforge run "deep think a launch banner for our spring sale"
//	postforge serve --config postforge.yaml --watch
//	postforge mcp --config postforge.yaml
//	postforge assets list
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/alecthomas/kong"
	_ "go.uber.org/automaxprocs"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/config/provider"
)

// CLI defines the command-line interface.
type CLI struct {
	Version   VersionCmd   `cmd:"" help:"Show version information."`
	Run       RunCmd       `cmd:"" help:"Create a marketing image from a single request."`
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP API."`
	MCP       MCPCmd       `cmd:"" name:"mcp" help:"Serve the MCP tools over stdio."`
	Assets    AssetsCmd    `cmd:"" help:"Inspect, export and import stored assets."`
	Reference ReferenceCmd `cmd:"" help:"Manage reference images."`
	Validate  ValidateCmd  `cmd:"" help:"Validate a configuration file."`

	Config          string   `short:"c" help:"Config file path or remote key." env:"POSTFORGE_CONFIG"`
	ConfigSource    string   `name:"config-source" help:"Config source: file, consul, etcd, zookeeper." default:"file" enum:"file,consul,etcd,zookeeper,zk"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints for remote config sources." sep:","`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, json)."`

	out io.Writer `kong:"-"`
}

// stdout is where commands print their results.
func (c *CLI) stdout() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

// loadConfig resolves the config source from the global flags.
func (c *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	source, err := provider.ParseType(c.ConfigSource)
	if err != nil {
		return nil, nil, err
	}
	if source == provider.TypeFile && c.Config != "" {
		if err := config.LoadEnvFiles(c.Config); err != nil {
			return nil, nil, err
		}
	}

	cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
		Type:      source,
		Path:      c.Config,
		Endpoints: c.ConfigEndpoints,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyConfigLogger(c, &cfg.Logger); err != nil {
		if loader != nil {
			loader.Close()
		}
		return nil, nil, err
	}
	return cfg, loader, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Fprintf(cli.stdout(), "postforge version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return strings.TrimPrefix(info.Main.Version, "v")
		}
	}
	return "dev"
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("postforge"),
		kong.Description("postforge - marketing images with a generate, review and refine loop"),
		kong.UsageOnError(),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	cli := CLI{}
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
