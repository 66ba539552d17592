// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session tracks per-user conversational state.
//
// A session remembers the asset it is working on, the last filename it
// produced and the most recent reference upload, so follow-up requests such
// as "make the headline bigger" edit the right image. A session serves one
// request at a time.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session doesn't exist.
var ErrNotFound = errors.New("session not found")

// ErrSessionBusy is returned when a session is already handling a request.
var ErrSessionBusy = errors.New("session is busy")

// Turn is one handled request in the session history.
type Turn struct {
	Input      string    `json:"input"`
	Mode       string    `json:"mode"`
	Filename   string    `json:"filename,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Session is the state of one conversation.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	busy atomic.Bool

	mu              sync.RWMutex
	currentAsset    string
	lastGenerated   string
	latestReference string
	turns           []Turn
	lastUpdateTime  time.Time
}

// New creates a session. An empty id is replaced with a random UUID.
func New(id, owner string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:             id,
		Owner:          owner,
		CreatedAt:      now,
		lastUpdateTime: now,
	}
}

// TryAcquire marks the session busy. It fails fast with ErrSessionBusy
// instead of waiting.
func (s *Session) TryAcquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	return nil
}

// Release clears the busy mark.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Busy reports whether a request is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// CurrentAsset returns the asset name follow-up edits apply to.
func (s *Session) CurrentAsset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentAsset
}

// LastGenerated returns the filename of the last version this session
// produced.
func (s *Session) LastGenerated() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGenerated
}

// LatestReference returns the filename of the latest reference upload.
func (s *Session) LatestReference() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestReference
}

// SetGenerated records a produced version and makes its asset current.
func (s *Session) SetGenerated(assetName, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAsset = assetName
	s.lastGenerated = filename
	s.lastUpdateTime = time.Now().UTC()
}

// SetLatestReference records a reference upload.
func (s *Session) SetLatestReference(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestReference = filename
	s.lastUpdateTime = time.Now().UTC()
}

// Record appends a turn to the history.
func (s *Session) Record(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	s.lastUpdateTime = turn.At
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// LastUpdateTime returns when the session was last modified.
func (s *Session) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateTime
}

// Info is a serializable snapshot of a session.
type Info struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Busy            bool      `json:"busy"`
	CurrentAsset    string    `json:"current_asset,omitempty"`
	LastGenerated   string    `json:"last_generated,omitempty"`
	LatestReference string    `json:"latest_reference,omitempty"`
	Turns           []Turn    `json:"turns"`
}

// Info returns a snapshot.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:              s.ID,
		Owner:           s.Owner,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.lastUpdateTime,
		Busy:            s.busy.Load(),
		CurrentAsset:    s.currentAsset,
		LastGenerated:   s.lastGenerated,
		LatestReference: s.latestReference,
		Turns:           append([]Turn{}, s.turns...),
	}
}

// Manager manages session lifecycle.
type Manager interface {
	// Create starts a session owned by owner.
	Create(ctx context.Context, owner string) (*Session, error)

	// Get retrieves an existing session.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session. Deleting a busy session fails with
	// ErrSessionBusy.
	Delete(ctx context.Context, id string) error

	// List returns the sessions of owner, oldest first. An empty owner
	// lists every session.
	List(ctx context.Context, owner string) ([]*Session, error)
}

// InMemoryManager returns a process-local session manager.
func InMemoryManager() Manager {
	return &inMemoryManager{
		sessions: make(map[string]*Session),
	}
}

type inMemoryManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func (m *inMemoryManager) Create(ctx context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := New("", owner)
	m.sessions[s.ID] = s
	return s, nil
}

func (m *inMemoryManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *inMemoryManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Busy() {
		return ErrSessionBusy
	}
	delete(m.sessions, id)
	return nil
}

func (m *inMemoryManager) List(ctx context.Context, owner string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*Session
	for _, s := range m.sessions {
		if owner == "" || s.Owner == owner {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

var _ Manager = (*inMemoryManager)(nil)
