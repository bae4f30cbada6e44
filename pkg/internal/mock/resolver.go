/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mock provides handwritten fakes for the service's collaborator
// contracts.
package mock

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

// KeyResolver resolves keys from an in-memory DID -> key map.
type KeyResolver struct {
	mu   sync.Mutex
	keys map[string]ed25519.PublicKey

	// Err, when set, is returned for every resolution.
	Err error
}

// NewKeyResolver returns an empty KeyResolver.
func NewKeyResolver() *KeyResolver {
	return &KeyResolver{keys: make(map[string]ed25519.PublicKey)}
}

// Add registers a key for did.
func (r *KeyResolver) Add(did string, key ed25519.PublicKey) *KeyResolver {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keys[did] = key

	return r
}

// ResolveKey implements msg.KeyResolver.
func (r *KeyResolver) ResolveKey(_ context.Context, did, _ string) (ed25519.PublicKey, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[did]
	if !ok {
		return nil, msg.ErrUnresolvable
	}

	return key, nil
}
