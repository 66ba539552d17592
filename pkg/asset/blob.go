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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BlobDir stores version bytes as files named {name}_v{index}.png.
type BlobDir struct {
	root string
}

// NewBlobDir creates root if needed.
func NewBlobDir(root string) (*BlobDir, error) {
	if root == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", root, err)
	}
	return &BlobDir{root: root}, nil
}

// Root returns the directory path.
func (b *BlobDir) Root() string {
	return b.root
}

// Path returns the file path for a version.
func (b *BlobDir) Path(name string, index int) string {
	return filepath.Join(b.root, Filename(name, index))
}

// Exists reports whether a file is present for the version.
func (b *BlobDir) Exists(name string, index int) bool {
	_, err := os.Stat(b.Path(name, index))
	return err == nil
}

// Write stores data through a temp file and rename. The index row is the
// source of truth: callers write only after reserving the row, so any file
// already at the path is an uncommitted leftover and is replaced.
func (b *BlobDir) Write(name string, index int, data []byte) error {
	dst := b.Path(name, index)

	tmp, err := os.CreateTemp(b.root, ".tmp-"+Filename(name, index)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", Filename(name, index), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", Filename(name, index), err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", Filename(name, index), err)
	}
	return nil
}

// Read loads the bytes of a version.
func (b *BlobDir) Read(name string, index int) ([]byte, error) {
	data, err := os.ReadFile(b.Path(name, index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", Filename(name, index), err)
	}
	return data, nil
}

// Remove deletes a version file. Used only to roll back a failed insert.
func (b *BlobDir) Remove(name string, index int) error {
	err := os.Remove(b.Path(name, index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
