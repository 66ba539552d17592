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

// Package asset stores named, versioned image assets.
//
// An asset is an ordered sequence of immutable versions numbered 1..N.
// Versions are never updated or deleted; a correction is a new version.
// Two backends are provided:
//
//   - MemoryStore keeps everything in process memory.
//   - SQLStore keeps an index in sqlite, postgres or mysql and writes each
//     blob to disk as {name}_v{index}.png.
//
// Index allocation for one asset name is serialized inside a store, so
// concurrent writers always observe contiguous numbering.
package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Latest selects the newest version in GetVersion.
const Latest = 0

// ReferenceAsset is the reserved asset name for uploaded reference images.
const ReferenceAsset = "reference_image"

var (
	// ErrNotFound is returned when an asset name or version index is absent.
	ErrNotFound = errors.New("asset not found")

	// ErrNameConflict is returned when two writers race on the same next
	// index and the retry also loses.
	ErrNameConflict = errors.New("asset version conflict")

	// ErrInvalidName is returned for names outside [A-Za-z0-9][A-Za-z0-9_-]*.
	ErrInvalidName = errors.New("invalid asset name")

	// ErrInvalidSource is returned for an unknown version source.
	ErrInvalidSource = errors.New("invalid version source")

	// ErrEmptyData is returned when a version has no bytes.
	ErrEmptyData = errors.New("empty version data")
)

// Source records where a version's bytes came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceEdited    Source = "edited"
	SourceReference Source = "reference"
	SourceUploaded  Source = "uploaded"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceGenerated, SourceEdited, SourceReference, SourceUploaded:
		return true
	}
	return false
}

// ParseSource converts a string to a Source.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
	return src, nil
}

// Version is one immutable revision of an asset.
//
// Data is populated by GetVersion and CreateVersion. ListVersions returns
// metadata only and leaves Data nil.
type Version struct {
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Data      []byte    `json:"-"`
	MIMEType  string    `json:"mime_type"`
	Source    Source    `json:"source"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// Filename returns the serialized identifier, e.g. holiday_promo_v3.png.
func (v *Version) Filename() string {
	return Filename(v.Name, v.Index)
}

// Store is the versioned asset repository.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateVersion appends a version with index = previous max + 1.
	CreateVersion(ctx context.Context, name string, data []byte, source Source) (*Version, error)

	// GetVersion returns one version. Pass Latest for the newest one.
	GetVersion(ctx context.Context, name string, index int) (*Version, error)

	// ListAssets returns all asset names in lexical order.
	ListAssets(ctx context.Context) ([]string, error)

	// ListVersions returns the versions of an asset in ascending order.
	ListVersions(ctx context.Context, name string) ([]*Version, error)

	// Close releases resources held by the store.
	Close() error
}

// newVersion builds the metadata for freshly written bytes.
func newVersion(name string, index int, data []byte, source Source, now time.Time) *Version {
	sum := sha256.Sum256(data)
	return &Version{
		Name:      name,
		Index:     index,
		Data:      data,
		MIMEType:  http.DetectContentType(data),
		Source:    source,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: now.UTC(),
	}
}

func validateWrite(name string, data []byte, source Source) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	if len(data) == 0 {
		return ErrEmptyData
	}
	return nil
}

func notFound(name string, index int) error {
	if index == Latest {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, Filename(name, index))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
