/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package registry tracks which DID is reachable through which live
// transport session.
package registry

import "sync"

// Registry is a bidirectional map between logged-in DIDs and transport
// session ids. A DID is bound to at most one session; a later login from
// a new session supersedes the previous binding without closing the old
// transport.
type Registry struct {
	mu        sync.RWMutex
	byDID     map[string]string
	bySession map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byDID:     make(map[string]string),
		bySession: make(map[string]string),
	}
}

// Bind associates did with sessionID in both directions. It returns false
// when did is already bound to sessionID, so callers can suppress duplicate
// login side effects. Binding never fails.
func (r *Registry) Bind(did, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byDID[did] == sessionID {
		return false
	}

	// A session that was carrying another DID gives up that forward entry,
	// otherwise a later Release of this session could not tell which DID to
	// clean up.
	if prev, ok := r.bySession[sessionID]; ok && prev != did && r.byDID[prev] == sessionID {
		delete(r.byDID, prev)
	}

	r.byDID[did] = sessionID
	r.bySession[sessionID] = did

	return true
}

// Resolve returns the session currently bound to did.
func (r *Registry) Resolve(did string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.byDID[did]

	return sessionID, ok
}

// Identity returns the DID bound to sessionID, if any.
func (r *Registry) Identity(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	did, ok := r.bySession[sessionID]

	return did, ok
}

// Release removes sessionID and, when it still owns the forward entry, its
// DID binding. Releasing an unknown or already-released session is a no-op.
// A session superseded by a newer login does not disturb the DID's current
// binding here.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	did, ok := r.bySession[sessionID]
	if !ok {
		return
	}

	delete(r.bySession, sessionID)

	if r.byDID[did] == sessionID {
		delete(r.byDID, did)
	}
}

// Size returns the number of logged-in DIDs.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byDID)
}
