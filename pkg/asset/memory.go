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
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string][]*Version
	locks  nameLocks
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets: make(map[string][]*Version),
		now:    time.Now,
	}
}

// CreateVersion implements Store.
func (s *MemoryStore) CreateVersion(ctx context.Context, name string, data []byte, source Source) (*Version, error) {
	if err := validateWrite(name, data, source); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	s.mu.Lock()
	index := len(s.assets[name]) + 1
	v := newVersion(name, index, cloneBytes(data), source, s.now())
	s.assets[name] = append(s.assets[name], v)
	s.mu.Unlock()

	slog.Debug("Stored asset version", "asset", name, "version", index, "source", source, "bytes", v.Size)

	out := *v
	out.Data = cloneBytes(v.Data)
	return &out, nil
}

// GetVersion implements Store.
func (s *MemoryStore) GetVersion(ctx context.Context, name string, index int) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.assets[name]
	if len(versions) == 0 {
		return nil, notFound(name, index)
	}
	if index == Latest {
		index = len(versions)
	}
	if index < 1 || index > len(versions) {
		return nil, notFound(name, index)
	}

	out := *versions[index-1]
	out.Data = cloneBytes(out.Data)
	return &out, nil
}

// ListAssets implements Store.
func (s *MemoryStore) ListAssets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.assets))
	for name := range s.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListVersions implements Store.
func (s *MemoryStore) ListVersions(ctx context.Context, name string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.assets[name]
	if !ok {
		return nil, notFound(name, Latest)
	}

	out := make([]*Version, len(versions))
	for i, v := range versions {
		meta := *v
		meta.Data = nil
		out[i] = &meta
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
