/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package msg defines the signed message envelopes exchanged with wallet
// clients and the verification boundary that turns untrusted input into
// typed messages.
package msg

import (
	"github.com/mitchellh/mapstructure"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
)

// Type tags the payload variant carried by an envelope.
type Type string

const (
	// TypeAny matches any message type; used by the relay path, which
	// forwards any signed message.
	TypeAny Type = ""

	// TypeAuthentication is the login message type.
	TypeAuthentication Type = "AuthenticationMessage"

	// TypeSwap is the directional token swap request type.
	TypeSwap Type = "SwapTokenMessage"

	// TypeFaucet is the faucet request type.
	TypeFaucet Type = "FaucetTokenMessage"

	// TypeVerification is the identity-verification result type pushed to
	// wallets.
	TypeVerification Type = "VerificationMessage"
)

// VerifiedMessage is an envelope whose signature has been verified. The
// original compact serialization is retained so relays can forward it
// verbatim and recipients can re-verify end to end.
type VerifiedMessage struct {
	raw       string
	sender    string
	recipient string
	msgType   Type
	payload   map[string]interface{}
}

// Raw returns the original signed envelope string.
func (m *VerifiedMessage) Raw() string {
	return m.raw
}

// Sender returns the signer DID.
func (m *VerifiedMessage) Sender() string {
	return m.sender
}

// Recipient returns the recipient DID; empty for messages without one.
func (m *VerifiedMessage) Recipient() string {
	return m.recipient
}

// Type returns the message type tag.
func (m *VerifiedMessage) Type() Type {
	return m.msgType
}

// Payload returns the raw payload object.
func (m *VerifiedMessage) Payload() map[string]interface{} {
	return m.payload
}

// DecodePayload decodes the payload object into out.
func (m *VerifiedMessage) DecodePayload(out interface{}) error {
	if err := mapstructure.Decode(m.payload, out); err != nil {
		return comerr.Wrap(comerr.MalformedEnvelope, err, "decode message payload")
	}

	return nil
}

// FaucetPayload is the payload of a TypeFaucet envelope.
type FaucetPayload struct {
	To     string `mapstructure:"to"`
	Amount string `mapstructure:"amount"`
}

// SwapPayload is the payload of a TypeSwap envelope.
type SwapPayload struct {
	Address string `mapstructure:"address"`
	Amount  string `mapstructure:"amount"`
	// Proof is the hex-encoded compact recoverable signature proving
	// control of Address.
	Proof string `mapstructure:"proof"`
}
