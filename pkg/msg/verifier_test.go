/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package msg_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
	"github.com/tonomy-foundation/communication-go/pkg/internal/mock"
	"github.com/tonomy-foundation/communication-go/pkg/internal/test/envelope"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

const aliceDID = "did:antelope:tonomy:alice#local"

func TestVerify(t *testing.T) {
	pub, priv := envelope.Keys(t)
	resolver := mock.NewKeyResolver().Add(aliceDID, pub)
	verifier := msg.NewVerifier(resolver)

	t.Run("success", func(t *testing.T) {
		raw := envelope.Sign(t, priv, envelope.Claims{
			Issuer:  aliceDID,
			Subject: "did:antelope:tonomy:bob#local",
			Type:    msg.TypeAuthentication,
			Payload: map[string]interface{}{"origin": "https://app.example"},
		})

		m, err := verifier.Verify(context.Background(), raw, msg.TypeAuthentication)
		require.NoError(t, err)
		require.Equal(t, aliceDID, m.Sender())
		require.Equal(t, "did:antelope:tonomy:bob#local", m.Recipient())
		require.Equal(t, msg.TypeAuthentication, m.Type())
		require.Equal(t, raw, m.Raw())
	})

	t.Run("malformed envelope", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "not-a-jws", msg.TypeAny)
		require.Error(t, err)
		require.Equal(t, comerr.MalformedEnvelope, comerr.KindOf(err))
	})

	t.Run("missing issuer", func(t *testing.T) {
		raw := envelope.Sign(t, priv, envelope.Claims{Type: msg.TypeAuthentication})

		_, err := verifier.Verify(context.Background(), raw, msg.TypeAny)
		require.Error(t, err)
		require.Equal(t, comerr.MalformedEnvelope, comerr.KindOf(err))
	})

	t.Run("tampered signature", func(t *testing.T) {
		raw := envelope.Sign(t, priv, envelope.Claims{
			Issuer: aliceDID,
			Type:   msg.TypeAuthentication,
		})

		parts := strings.Split(raw, ".")
		require.Len(t, parts, 3)

		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}

		tampered := strings.Join([]string{parts[0], parts[1], string(sig)}, ".")

		_, err := verifier.Verify(context.Background(), tampered, msg.TypeAny)
		require.Error(t, err)
		require.Equal(t, comerr.SignatureInvalid, comerr.KindOf(err))
	})

	t.Run("signer unresolvable", func(t *testing.T) {
		_, stranger := envelope.Keys(t)

		raw := envelope.Sign(t, stranger, envelope.Claims{
			Issuer: "did:antelope:tonomy:stranger#local",
			Type:   msg.TypeAuthentication,
		})

		_, err := verifier.Verify(context.Background(), raw, msg.TypeAny)
		require.Error(t, err)
		require.Equal(t, comerr.SignerUnresolvable, comerr.KindOf(err))
	})

	t.Run("unexpected message type", func(t *testing.T) {
		raw := envelope.Sign(t, priv, envelope.Claims{
			Issuer: aliceDID,
			Type:   msg.TypeFaucet,
		})

		_, err := verifier.Verify(context.Background(), raw, msg.TypeAuthentication)
		require.Error(t, err)
		require.Equal(t, comerr.UnexpectedMessageType, comerr.KindOf(err))
	})

	t.Run("relay accepts any type", func(t *testing.T) {
		raw := envelope.Sign(t, priv, envelope.Claims{
			Issuer: aliceDID,
			Type:   msg.Type("LinkAuthRequestMessage"),
		})

		m, err := verifier.Verify(context.Background(), raw, msg.TypeAny)
		require.NoError(t, err)
		require.Equal(t, msg.Type("LinkAuthRequestMessage"), m.Type())
	})
}

func TestDecodePayload(t *testing.T) {
	pub, priv := envelope.Keys(t)
	verifier := msg.NewVerifier(mock.NewKeyResolver().Add(aliceDID, pub))

	raw := envelope.Sign(t, priv, envelope.Claims{
		Issuer: aliceDID,
		Type:   msg.TypeFaucet,
		Payload: map[string]interface{}{
			"to":     "alice",
			"amount": "500.000000 TONO",
		},
	})

	m, err := verifier.Verify(context.Background(), raw, msg.TypeFaucet)
	require.NoError(t, err)

	var p msg.FaucetPayload
	require.NoError(t, m.DecodePayload(&p))
	require.Equal(t, "alice", p.To)
	require.Equal(t, "500.000000 TONO", p.Amount)
}

func TestPlatformDID(t *testing.T) {
	did := msg.PlatformDID("demo.tmy")
	require.Equal(t, "did:antelope:tonomy:demo.tmy#apps", did)

	account, err := msg.AccountOf(did)
	require.NoError(t, err)
	require.Equal(t, "demo.tmy", account)

	_, err = msg.AccountOf("did:example:alice")
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	pub, _ := envelope.Keys(t)

	fp := msg.Fingerprint(pub)
	require.True(t, strings.HasPrefix(fp, "z"))
	require.NotEmpty(t, msg.KeyID(pub))
}
