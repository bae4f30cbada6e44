/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mock

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
)

// EVMToken fakes the EVM token contract. Events pushed through Emit are
// delivered synchronously to the subscribed handler.
type EVMToken struct {
	mu      sync.Mutex
	handler func(chain.TransferEvent)

	Cancelled    bool
	FinalizeErr  error
	FinalizeFunc func(ctx context.Context, txHash string) error
	TransferErr  error
	Transfers    []string // "to|amount|memo"
	Finalized    []string
	SubscribeErr error
}

// SubscribeTransfers implements chain.EVMToken.
func (c *EVMToken) SubscribeTransfers(handler func(chain.TransferEvent)) (func(), error) {
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.Cancelled = true
		c.handler = nil
	}, nil
}

// Emit delivers ev to the subscribed handler.
func (c *EVMToken) Emit(ev chain.TransferEvent) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

// AwaitFinalization implements chain.EVMToken.
func (c *EVMToken) AwaitFinalization(ctx context.Context, txHash string) error {
	if c.FinalizeFunc != nil {
		if err := c.FinalizeFunc(ctx, txHash); err != nil {
			return err
		}
	}

	if c.FinalizeErr != nil {
		return c.FinalizeErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Finalized = append(c.Finalized, txHash)

	return nil
}

// Transfer implements chain.EVMToken.
func (c *EVMToken) Transfer(_ context.Context, to string, amount *big.Int, memo string) (string, error) {
	if c.TransferErr != nil {
		return "", c.TransferErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transfers = append(c.Transfers, fmt.Sprintf("%s|%s|%s", to, amount, memo))

	return fmt.Sprintf("0xsent%d", len(c.Transfers)), nil
}

// TonomyToken fakes the Tonomy token contract, recording calls.
type TonomyToken struct {
	mu sync.Mutex

	Issues    []string // "account|asset|memo"
	Retires   []string // "asset|memo"
	Transfers []string // "from|to|asset|memo"

	IssueErr    error
	RetireErr   error
	TransferErr error
	AwaitErr    error
}

// BridgeIssue implements chain.TonomyToken.
func (c *TonomyToken) BridgeIssue(_ context.Context, account, asset, memo string) (string, error) {
	if c.IssueErr != nil {
		return "", c.IssueErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Issues = append(c.Issues, fmt.Sprintf("%s|%s|%s", account, asset, memo))

	return fmt.Sprintf("issue%d", len(c.Issues)), nil
}

// BridgeRetire implements chain.TonomyToken.
func (c *TonomyToken) BridgeRetire(_ context.Context, asset, memo string) (string, error) {
	if c.RetireErr != nil {
		return "", c.RetireErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Retires = append(c.Retires, fmt.Sprintf("%s|%s", asset, memo))

	return fmt.Sprintf("retire%d", len(c.Retires)), nil
}

// Transfer implements chain.TonomyToken.
func (c *TonomyToken) Transfer(_ context.Context, from, to, asset, memo string) (string, error) {
	if c.TransferErr != nil {
		return "", c.TransferErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transfers = append(c.Transfers, fmt.Sprintf("%s|%s|%s|%s", from, to, asset, memo))

	return fmt.Sprintf("tx%d", len(c.Transfers)), nil
}

// AwaitIrreversibility implements chain.TonomyToken.
func (c *TonomyToken) AwaitIrreversibility(_ context.Context, _ string) error {
	return c.AwaitErr
}

// IssueCount returns the number of BridgeIssue calls.
func (c *TonomyToken) IssueCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Issues)
}

// MsigProposer fakes the multi-signature wallet path.
type MsigProposer struct {
	mu sync.Mutex

	Proposals []string // "to|amount|memo"
	Err       error
}

// ProposeTransfer implements chain.MsigProposer.
func (p *MsigProposer) ProposeTransfer(_ context.Context, to string, amount *big.Int, memo string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Proposals = append(p.Proposals, fmt.Sprintf("%s|%s|%s", to, amount, memo))

	return fmt.Sprintf("proposal%d", len(p.Proposals)), nil
}
