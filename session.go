// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"
	"sync"

	"mellium.im/gateway/dataform"
)

// ErrSessionNotFound is returned by session stores when there is no session
// with the requested id.
var ErrSessionNotFound = errors.New("gateway: command session not found")

// CommandSession is the state of a multi-step ad-hoc command.
type CommandSession struct {
	ID   string `cbor:"id"`
	Node string `cbor:"node"`

	// Owner is the bare JID of the user that started the command.
	// Only they may continue it.
	Owner string `cbor:"owner"`

	Step   int             `cbor:"step"`
	Values dataform.Values `cbor:"values"`
}

func (s *CommandSession) merge(vals dataform.Values) {
	for k, v := range vals {
		s.Values[k] = v
	}
}

func (s *CommandSession) clone() *CommandSession {
	c := *s
	c.Values = make(dataform.Values, len(s.Values))
	for k, v := range s.Values {
		c.Values[k] = append([]string(nil), v...)
	}
	return &c
}

// SessionStore holds the sessions of commands in progress.
type SessionStore interface {
	Get(ctx context.Context, id string) (*CommandSession, error)
	Put(ctx context.Context, s *CommandSession) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore is a SessionStore that keeps sessions in memory.
// Sessions are lost when the process exits.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*CommandSession
}

// NewMemorySessionStore returns an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*CommandSession),
	}
}

// Get returns a copy of the session with the given id.
func (m *MemorySessionStore) Get(_ context.Context, id string) (*CommandSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

// Put stores a copy of s.
func (m *MemorySessionStore) Put(_ context.Context, s *CommandSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.clone()
	return nil
}

// Delete removes the session with the given id if it exists.
func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of sessions in progress.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
