/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package swap_test

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
	"github.com/tonomy-foundation/communication-go/pkg/comerr"
	"github.com/tonomy-foundation/communication-go/pkg/internal/mock"
	"github.com/tonomy-foundation/communication-go/pkg/internal/test/envelope"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
	"github.com/tonomy-foundation/communication-go/pkg/swap"
)

const (
	userDID = "did:antelope:tonomy:alice#local"
	appDID  = "did:antelope:tonomy:apps.tmy#apps"
)

type allowAll struct{ allow bool }

func (a allowAll) Authorized(string) bool { return a.allow }

type fixture struct {
	service *swap.Service
	token   *mock.TonomyToken
	evm     *mock.EVMToken
	msig    *mock.MsigProposer

	userKey ed25519.PrivateKey
	appKey  ed25519.PrivateKey
}

func setup(t *testing.T, mutate func(*swap.Config)) *fixture {
	t.Helper()

	userPub, userPriv := envelope.Keys(t)
	appPub, appPriv := envelope.Keys(t)

	resolver := mock.NewKeyResolver().Add(userDID, userPub).Add(appDID, appPub)

	cfg := swap.Config{
		CurrencySymbol:  "TONO",
		TreasuryAccount: "treasury.tmy",
		PerRequestMax:   chain.Tokens(1_000),
		DailyCap:        chain.Tokens(20_000),
		AppAccount:      "apps.tmy",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		token:   &mock.TonomyToken{},
		evm:     &mock.EVMToken{},
		msig:    &mock.MsigProposer{},
		userKey: userPriv,
		appKey:  appPriv,
	}

	f.service = swap.New(allowAll{allow: true}, msg.NewVerifier(resolver), f.token, f.evm, f.msig, cfg)

	return f
}

func faucetEnvelope(t *testing.T, f *fixture, amount string) string {
	t.Helper()

	return envelope.Sign(t, f.userKey, envelope.Claims{
		Issuer: userDID,
		Type:   msg.TypeFaucet,
		Payload: map[string]interface{}{
			"to":     "alice",
			"amount": amount,
		},
	})
}

func TestRequestFaucet(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := setup(t, nil)

		details, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "500.000000 TONO"))
		require.NoError(t, err)
		require.Equal(t, "500.000000 TONO", details["asset"])
		require.Equal(t, []string{"treasury.tmy|alice|500.000000 TONO|faucet"}, f.token.Transfers)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f := setup(t, nil)
		svc := swap.New(allowAll{allow: false}, msg.NewVerifier(mock.NewKeyResolver()), f.token, f.evm, f.msig,
			swap.Config{CurrencySymbol: "TONO"})

		_, err := svc.RequestFaucet(context.Background(), "s1", "whatever")
		require.Error(t, err)
		require.Equal(t, comerr.Unauthenticated, comerr.KindOf(err))
	})

	t.Run("unavailable in production", func(t *testing.T) {
		f := setup(t, func(cfg *swap.Config) { cfg.Production = true })

		_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "500.000000 TONO"))
		require.Error(t, err)
		require.Equal(t, comerr.FaucetUnavailable, comerr.KindOf(err))
	})

	t.Run("per-request cap ignores remaining allowance", func(t *testing.T) {
		f := setup(t, nil)

		_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "1500.000000 TONO"))
		require.Error(t, err)
		require.Equal(t, comerr.InvalidAmount, comerr.KindOf(err))
	})

	t.Run("invalid amounts", func(t *testing.T) {
		f := setup(t, nil)

		for _, amount := range []string{"0.000000 TONO", "500.000000 EOS", "500 TONO", "garbage"} {
			_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, amount))
			require.Error(t, err, amount)
			require.Equal(t, comerr.InvalidAmount, comerr.KindOf(err), amount)
		}
	})

	t.Run("rolling cap allows exactly the daily limit", func(t *testing.T) {
		f := setup(t, nil)

		_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "500.000000 TONO"))
		require.NoError(t, err)

		for i := 0; i < 19; i++ {
			_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "1000.000000 TONO"))
			require.NoError(t, err, fmt.Sprintf("request %d", i))
		}

		// total is now exactly 19500 + 500 = 20000
		_, err = f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "500.000000 TONO"))
		require.NoError(t, err)

		_, err = f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "0.000001 TONO"))
		require.Error(t, err)
		require.Equal(t, comerr.ThrottleLimitExceeded, comerr.KindOf(err))
		require.Equal(t, "0.000000 TONO", comerr.DetailsOf(err)["remainingAllowance"])
	})

	t.Run("failed transfer does not consume quota", func(t *testing.T) {
		f := setup(t, nil)
		f.token.TransferErr = errors.New("chain down")

		_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "1000.000000 TONO"))
		require.Error(t, err)
		require.Equal(t, comerr.ChainOperationFailed, comerr.KindOf(err))

		f.token.TransferErr = nil

		for i := 0; i < 20; i++ {
			_, err := f.service.RequestFaucet(context.Background(), "s1", faucetEnvelope(t, f, "1000.000000 TONO"))
			require.NoError(t, err, fmt.Sprintf("request %d", i))
		}
	})
}

func swapEnvelope(t *testing.T, f *fixture, issuer string, key ed25519.PrivateKey,
	address, amount, proof string) string {
	t.Helper()

	return envelope.Sign(t, key, envelope.Claims{
		Issuer: issuer,
		Type:   msg.TypeSwap,
		Payload: map[string]interface{}{
			"address": address,
			"amount":  amount,
			"proof":   proof,
		},
	})
}

func signProof(t *testing.T, key *secp256k1.PrivateKey, did, address string) string {
	t.Helper()

	text := swap.ProofMessage(did, address)

	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d", len(text))
	h.Write([]byte(text))

	return "0x" + hex.EncodeToString(secpecdsa.SignCompact(key, h.Sum(nil), false))
}

func evmAddress(key *secp256k1.PrivateKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(key.PubKey().SerializeUncompressed()[1:])
	sum := h.Sum(nil)

	return "0x" + hex.EncodeToString(sum[12:])
}

func TestSwapToBase(t *testing.T) {
	destKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	address := evmAddress(destKey)

	t.Run("direct transfer", func(t *testing.T) {
		f := setup(t, nil)

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "10.000000 TONO",
			signProof(t, destKey, appDID, address))

		details, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.NoError(t, err)
		require.NotEmpty(t, details["swapId"])
		require.NotEmpty(t, details["txHash"])
		require.Len(t, f.token.Retires, 1)
		require.Len(t, f.evm.Transfers, 1)
		require.Contains(t, f.evm.Transfers[0], address+"|10000000000000000000|")
		require.Empty(t, f.msig.Proposals)
	})

	t.Run("msig proposal in production configuration", func(t *testing.T) {
		f := setup(t, func(cfg *swap.Config) { cfg.Msig = true })

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "10.000000 TONO",
			signProof(t, destKey, appDID, address))

		details, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.NoError(t, err)
		require.Equal(t, "pending-signatures", details["status"])
		require.NotEmpty(t, details["proposalId"])
		require.Len(t, f.msig.Proposals, 1)
		require.Empty(t, f.evm.Transfers)
	})

	t.Run("untrusted issuer", func(t *testing.T) {
		f := setup(t, nil)

		raw := swapEnvelope(t, f, userDID, f.userKey, address, "10.000000 TONO",
			signProof(t, destKey, userDID, address))

		_, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.Error(t, err)
		require.Equal(t, comerr.UntrustedIssuer, comerr.KindOf(err))
	})

	t.Run("invalid address proof", func(t *testing.T) {
		f := setup(t, nil)

		wrongKey, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "10.000000 TONO",
			signProof(t, wrongKey, appDID, address))

		_, err = f.service.SwapToBase(context.Background(), "s1", raw)
		require.Error(t, err)
		require.Equal(t, comerr.SignatureInvalid, comerr.KindOf(err))
		require.Empty(t, f.token.Retires)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := setup(t, nil)

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "0.000000 TONO",
			signProof(t, destKey, appDID, address))

		_, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.Error(t, err)
		require.Equal(t, comerr.InvalidAmount, comerr.KindOf(err))
		require.Contains(t, err.Error(), "positive")
	})

	t.Run("wrong asset symbol", func(t *testing.T) {
		f := setup(t, nil)

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "10.000000 EOS",
			signProof(t, destKey, appDID, address))

		_, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.Error(t, err)
		require.Equal(t, comerr.InvalidAmount, comerr.KindOf(err))
		require.Contains(t, err.Error(), "asset symbol must be TONO")
	})

	t.Run("destination failure is surfaced, not compensated", func(t *testing.T) {
		f := setup(t, nil)
		f.evm.TransferErr = errors.New("rpc down")

		raw := swapEnvelope(t, f, appDID, f.appKey, address, "10.000000 TONO",
			signProof(t, destKey, appDID, address))

		_, err := f.service.SwapToBase(context.Background(), "s1", raw)
		require.Error(t, err)
		require.Equal(t, comerr.ChainOperationFailed, comerr.KindOf(err))

		details := comerr.DetailsOf(err)
		require.NotEmpty(t, details["retireTx"])
		require.NotEmpty(t, details["swapId"])

		// the retire happened and stays happened
		require.Len(t, f.token.Retires, 1)
	})
}
