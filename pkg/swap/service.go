/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package swap implements the throttled faucet and the Tonomy-to-Base
// directional swap executor.
package swap

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
	"github.com/tonomy-foundation/communication-go/pkg/comerr"
	"github.com/tonomy-foundation/communication-go/pkg/internal/metrics"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

var logger = log.New("communication/swap")

const ledgerWindow = 24 * time.Hour

// Config carries the executor settings. Amounts are micro-units.
type Config struct {
	// Production disables the faucet entirely.
	Production bool

	CurrencySymbol  string
	TreasuryAccount string

	// PerRequestMax caps one faucet request; DailyCap caps the rolling
	// 24h total per DID.
	PerRequestMax int64
	DailyCap      int64

	// AppAccount is the well-known platform application allowed to issue
	// swap requests.
	AppAccount string

	// Msig routes destination transfers through the multi-signature
	// wallet instead of submitting directly.
	Msig bool
}

type authorizer interface {
	Authorized(sessionID string) bool
}

// Service validates and executes faucet and swap requests.
type Service struct {
	auth     authorizer
	verifier *msg.Verifier
	token    chain.TonomyToken
	evm      chain.EVMToken
	msig     chain.MsigProposer
	ledger   *Ledger
	cfg      Config
	clk      clock.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock substitutes the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clk = clk
	}
}

// New returns a swap Service.
func New(auth authorizer, verifier *msg.Verifier, token chain.TonomyToken, evm chain.EVMToken,
	msig chain.MsigProposer, cfg Config, opts ...Option) *Service {
	s := &Service{
		auth:     auth,
		verifier: verifier,
		token:    token,
		evm:      evm,
		msig:     msig,
		cfg:      cfg,
		clk:      clock.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.ledger = NewLedger(ledgerWindow, s.clk)

	return s
}

// RequestFaucet validates a signed faucet envelope against environment,
// amount bounds and the rolling daily cap, then transfers from the
// treasury. Quota is consumed only after the transfer succeeds.
func (s *Service) RequestFaucet(ctx context.Context, sessionID, raw string) (map[string]interface{}, error) {
	if !s.auth.Authorized(sessionID) {
		return nil, comerr.New(comerr.Unauthenticated, "please login to be able to use service")
	}

	m, err := s.verifier.Verify(ctx, raw, msg.TypeFaucet)
	if err != nil {
		return nil, err
	}

	if s.cfg.Production {
		return nil, comerr.New(comerr.FaucetUnavailable, "faucet is not available in production")
	}

	var p msg.FaucetPayload
	if err := m.DecodePayload(&p); err != nil {
		return nil, err
	}

	if p.To == "" {
		return nil, comerr.New(comerr.MalformedEnvelope, "faucet request has no destination account")
	}

	amount, symbol, err := chain.ParseAsset(p.Amount)
	if err != nil {
		return nil, comerr.Wrap(comerr.InvalidAmount, err, "faucet amount")
	}

	if symbol != s.cfg.CurrencySymbol {
		return nil, comerr.Newf(comerr.InvalidAmount, "asset symbol must be %s", s.cfg.CurrencySymbol)
	}

	if amount <= 0 || amount > s.cfg.PerRequestMax {
		return nil, comerr.Newf(comerr.InvalidAmount, "amount must be between %s and %s",
			chain.FormatMicro(1, symbol), chain.FormatMicro(s.cfg.PerRequestMax, symbol))
	}

	remaining := s.cfg.DailyCap - s.ledger.Granted(m.Sender())
	if amount > remaining {
		if remaining < 0 {
			remaining = 0
		}

		return nil, comerr.New(comerr.ThrottleLimitExceeded, "daily faucet limit exceeded").
			WithDetail("remainingAllowance", chain.FormatMicro(remaining, symbol))
	}

	asset := chain.FormatMicro(amount, symbol)

	txID, err := s.token.Transfer(ctx, s.cfg.TreasuryAccount, p.To, asset, "faucet")
	if err != nil {
		return nil, comerr.Wrap(comerr.ChainOperationFailed, err, "faucet transfer")
	}

	s.ledger.Add(m.Sender(), amount)
	metrics.FaucetGrants.Inc()

	logger.Debugf("faucet %s to %s (%s)", asset, p.To, m.Sender())

	return map[string]interface{}{
		"transactionId": txID,
		"asset":         asset,
	}, nil
}

// SwapToBase retires tokens on the Tonomy chain and releases them on the
// EVM chain, either directly or through a multi-signature proposal. A
// destination failure after the retire is surfaced, not compensated.
func (s *Service) SwapToBase(ctx context.Context, sessionID, raw string) (map[string]interface{}, error) {
	if !s.auth.Authorized(sessionID) {
		return nil, comerr.New(comerr.Unauthenticated, "please login to be able to use service")
	}

	m, err := s.verifier.Verify(ctx, raw, msg.TypeSwap)
	if err != nil {
		return nil, err
	}

	account, err := msg.AccountOf(m.Sender())
	if err != nil || account != s.cfg.AppAccount {
		return nil, comerr.Newf(comerr.UntrustedIssuer, "swap requests must be issued by %s", s.cfg.AppAccount)
	}

	var p msg.SwapPayload
	if err := m.DecodePayload(&p); err != nil {
		return nil, err
	}

	amount, symbol, err := chain.ParseAsset(p.Amount)
	if err != nil {
		return nil, comerr.Wrap(comerr.InvalidAmount, err, "swap amount")
	}

	if symbol != s.cfg.CurrencySymbol {
		return nil, comerr.Newf(comerr.InvalidAmount, "asset symbol must be %s", s.cfg.CurrencySymbol)
	}

	if amount <= 0 {
		return nil, comerr.New(comerr.InvalidAmount, "swap amount must be positive")
	}

	if err := VerifyAddressProof(m.Sender(), p.Address, p.Proof); err != nil {
		return nil, err
	}

	swapID := uuid.New().String()
	asset := chain.FormatMicro(amount, symbol)
	memo := "TONO swap to base " + swapID

	retireTx, err := s.token.BridgeRetire(ctx, asset, memo)
	if err != nil {
		return nil, comerr.Wrap(comerr.ChainOperationFailed, err, "bridge retire")
	}

	if err := s.token.AwaitIrreversibility(ctx, retireTx); err != nil {
		logger.Errorf("swap %s: retire %s submitted but irreversibility wait failed: %v", swapID, retireTx, err)

		return nil, comerr.Wrap(comerr.ChainOperationFailed, err, "await retire irreversibility").
			WithDetail("retireTx", retireTx).WithDetail("swapId", swapID)
	}

	details := map[string]interface{}{
		"swapId":   swapID,
		"retireTx": retireTx,
		"asset":    asset,
	}

	wei := chain.MicroToWei(amount)

	if s.cfg.Msig {
		proposalID, err := s.msig.ProposeTransfer(ctx, p.Address, wei, memo)
		if err != nil {
			return nil, s.destinationFailure(swapID, retireTx, err)
		}

		details["proposalId"] = proposalID
		details["status"] = "pending-signatures"

		return details, nil
	}

	txHash, err := s.evm.Transfer(ctx, p.Address, wei, memo)
	if err != nil {
		return nil, s.destinationFailure(swapID, retireTx, err)
	}

	details["txHash"] = txHash

	return details, nil
}

// destinationFailure records a half-completed swap. The retire is already
// irreversible; operators must reconcile by hand.
func (s *Service) destinationFailure(swapID, retireTx string, err error) error {
	logger.Errorf("swap %s: retire %s completed but destination transfer failed, manual intervention required: %v",
		swapID, retireTx, err)

	return comerr.Wrap(comerr.ChainOperationFailed, err, "destination transfer").
		WithDetail("retireTx", retireTx).WithDetail("swapId", swapID)
}
