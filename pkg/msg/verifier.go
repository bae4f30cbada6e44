/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package msg

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"

	"github.com/go-jose/go-jose/v3"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
)

var logger = log.New("communication/msg")

// ErrUnresolvable is returned by KeyResolver implementations when no DID
// document matches the signer.
var ErrUnresolvable = errors.New("unable to resolve DID document")

// KeyResolver resolves the signer's verification key material. Resolution
// may involve network calls to the signer's DID method.
type KeyResolver interface {
	ResolveKey(ctx context.Context, did, kid string) (ed25519.PublicKey, error)
}

// Verifier validates inbound signed envelopes. It is the only boundary
// through which untrusted client input becomes a typed message.
type Verifier struct {
	resolver KeyResolver
}

// NewVerifier returns a Verifier backed by the given resolver.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{resolver: resolver}
}

type claims struct {
	Issuer  string                 `json:"iss"`
	Subject string                 `json:"sub"`
	Type    Type                   `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Verify decodes raw, verifies its signature against the claimed signer's
// resolved key and, when expect is not TypeAny, checks the message type.
// All failures are reported as comerr errors; Verify never panics on
// malformed input.
func (v *Verifier) Verify(ctx context.Context, raw string, expect Type) (*VerifiedMessage, error) {
	jws, err := jose.ParseSigned(raw)
	if err != nil {
		return nil, comerr.Wrap(comerr.MalformedEnvelope, err, "parse envelope")
	}

	var c claims
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &c); err != nil {
		return nil, comerr.Wrap(comerr.MalformedEnvelope, err, "decode envelope claims")
	}

	if c.Issuer == "" || c.Type == "" {
		return nil, comerr.New(comerr.MalformedEnvelope, "envelope is missing issuer or type")
	}

	if len(jws.Signatures) == 0 {
		return nil, comerr.New(comerr.MalformedEnvelope, "envelope carries no signature")
	}

	kid := jws.Signatures[0].Header.KeyID

	key, err := v.resolver.ResolveKey(ctx, c.Issuer, kid)
	if err != nil {
		if errors.Is(err, ErrUnresolvable) {
			return nil, comerr.Newf(comerr.SignerUnresolvable, "DID could not be resolved from %s", c.Issuer)
		}

		logger.Errorf("resolving signer key for %s: %v", c.Issuer, err)

		return nil, comerr.Wrap(comerr.Internal, err, "resolve signer key")
	}

	if _, err := jws.Verify(key); err != nil {
		return nil, comerr.Newf(comerr.SignatureInvalid, "could not verify signer from %s", c.Issuer)
	}

	if expect != TypeAny && c.Type != expect {
		return nil, comerr.Newf(comerr.UnexpectedMessageType, "message type must be '%s'", expect)
	}

	return &VerifiedMessage{
		raw:       raw,
		sender:    c.Issuer,
		recipient: c.Subject,
		msgType:   c.Type,
		payload:   c.Payload,
	}, nil
}
