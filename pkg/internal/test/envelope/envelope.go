/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package envelope builds signed test envelopes.
package envelope

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"

	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

// Claims is the claim set of a test envelope.
type Claims struct {
	Issuer  string                 `json:"iss"`
	Subject string                 `json:"sub,omitempty"`
	Type    msg.Type               `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Keys generates an ed25519 key pair for a test signer.
func Keys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return pub, priv
}

// Sign returns the compact serialization of claims signed with priv.
func Sign(t *testing.T, priv ed25519.PrivateKey, c Claims) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: priv},
		(&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), msg.KeyID(priv.Public().(ed25519.PublicKey))),
	)
	require.NoError(t, err)

	payload, err := json.Marshal(c)
	require.NoError(t, err)

	jws, err := signer.Sign(payload)
	require.NoError(t, err)

	raw, err := jws.CompactSerialize()
	require.NoError(t, err)

	return raw
}
