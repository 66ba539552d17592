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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// apiKeyVars lists the variables consulted for each backend, in order.
var apiKeyVars = map[string][]string{
	BackendOpenAI:    {"OPENAI_API_KEY"},
	BackendAnthropic: {"ANTHROPIC_API_KEY"},
	BackendGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// expandEnvVars walks a decoded document and expands variables in every
// string leaf.
func expandEnvVars(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = expandAny(v)
	}
	return out
}

func expandAny(v any) any {
	switch t := v.(type) {
	case string:
		return expandEnvString(t)
	case map[string]any:
		return expandEnvVars(t)
	case []any:
		items := make([]any, 0, len(t))
		for _, item := range t {
			items = append(items, expandAny(item))
		}
		return items
	}
	return v
}

// expandEnvString supports $VAR, ${VAR} and ${VAR:-fallback}. The fallback
// is used when the variable is unset or empty.
func expandEnvString(s string) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
}

// LoadEnvFiles loads .env.local and .env from the working directory, then
// from the config file's directory. Variables already set are kept.
func LoadEnvFiles(configPath string) error {
	dirs := []string{"."}
	if dir := filepath.Dir(configPath); configPath != "" && dir != "." {
		dirs = append(dirs, dir)
	}

	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			path := filepath.Join(dir, name)
			err := godotenv.Load(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", path, err)
			}
		}
	}
	return nil
}

// GetProviderAPIKey returns the first non-empty conventional key variable
// for backend.
func GetProviderAPIKey(backend string) string {
	for _, name := range apiKeyVars[backend] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
