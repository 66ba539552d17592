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

package asset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FileExtension is the extension used for every serialized version.
const FileExtension = "png"

const maxNameLength = 128

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateName checks that name can be used as an asset identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (allowed: letters, digits, '_' and '-')", ErrInvalidName, name)
	}
	return nil
}

// Filename returns {name}_v{index}.png.
func Filename(name string, index int) string {
	return fmt.Sprintf("%s_v%d.%s", name, index, FileExtension)
}

// ParseFilename splits {name}_v{index}.png into its parts.
// The extension is optional, so "promo_v2" parses too.
func ParseFilename(filename string) (string, int, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, "."+FileExtension)

	i := strings.LastIndex(base, "_v")
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: %q is not of the form name_vN.%s", ErrNotFound, filename, FileExtension)
	}

	name := base[:i]
	index, err := strconv.Atoi(base[i+2:])
	if err != nil || index < 1 {
		return "", 0, fmt.Errorf("%w: %q has no valid version number", ErrNotFound, filename)
	}
	if err := ValidateName(name); err != nil {
		return "", 0, err
	}
	return name, index, nil
}

// ParseVersion converts "latest", "v3" or "3" into a version index.
func ParseVersion(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "latest" {
		return Latest, nil
	}
	index, err := strconv.Atoi(strings.TrimPrefix(s, "v"))
	if err != nil || index < 1 {
		return 0, fmt.Errorf("%w: invalid version %q", ErrNotFound, s)
	}
	return index, nil
}
