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
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/config/provider"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	File string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH" type:"existingfile"`

	Format string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`

	// PrintConfig prints the configuration with defaults applied and env vars resolved.
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

// ValidationError is one entry of the JSON report.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type validationReport struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	out := cli.stdout()
	_ = config.LoadEnvFiles(c.File)

	cfg, loader, err := config.LoadConfig(context.Background(), provider.ProviderConfig{
		Type: provider.TypeFile,
		Path: c.File,
	})
	if err != nil {
		return c.printError(out, err)
	}
	defer loader.Close()

	if c.PrintConfig {
		return c.printConfig(out, cfg)
	}

	switch c.Format {
	case "json":
		return writeJSON(out, validationReport{Valid: true, File: c.File})
	case "verbose":
		printTitle(out, "Configuration Validation Successful")
		printKV(out, "File", c.File)
		printKV(out, "Status", styleSuccess.Render("valid"))
	default:
		fmt.Fprintf(out, "%s: valid\n", c.File)
	}
	return nil
}

func (c *ValidateCmd) printError(out io.Writer, err error) error {
	switch c.Format {
	case "json":
		if werr := writeJSON(out, validationReport{File: c.File, Errors: []ValidationError{{Type: "load", Message: err.Error()}}}); werr != nil {
			return werr
		}
	case "verbose":
		printTitle(out, "Configuration Load Error")
		printKV(out, "File", c.File)
		printKV(out, "Error", styleError.Render(err.Error()))
	default:
		fmt.Fprintf(out, "%s: %s\n", c.File, err)
	}
	return fmt.Errorf("config validation failed")
}

func (c *ValidateCmd) printConfig(out io.Writer, cfg *config.Config) error {
	cfg = redacted(cfg)
	if c.Format == "json" {
		return writeJSON(out, cfg)
	}

	fmt.Fprintf(out, "# Expanded configuration from: %s\n", c.File)
	fmt.Fprintf(out, "# (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return enc.Close()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const redactedValue = "********"

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg *config.Config) *config.Config {
	cp := *cfg
	if cp.Image.APIKey != "" {
		cp.Image.APIKey = redactedValue
	}
	if cp.Review.APIKey != "" {
		cp.Review.APIKey = redactedValue
	}
	if db := cp.Storage.Database; db != nil && db.Password != "" {
		dbCopy := *db
		dbCopy.Password = redactedValue
		cp.Storage.Database = &dbCopy
	}
	return &cp
}
