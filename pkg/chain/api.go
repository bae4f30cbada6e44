/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package chain defines the contracts consumed from both blockchain
// networks. Implementations live in the evm and tonomy subpackages; the
// rest of the service depends on these interfaces only.
package chain

import (
	"context"
	"math/big"
)

// TransferEvent is one token transfer observed on the EVM chain. Amount
// is in wei (18 decimals). Memo carries the calldata suffix appended to
// the transfer, already decoded to text.
type TransferEvent struct {
	TxHash string
	From   string
	To     string
	Amount *big.Int
	Memo   string
}

// EVMToken is the bridged ERC-20 token on the EVM chain.
type EVMToken interface {
	// SubscribeTransfers delivers transfer events to handler until the
	// returned cancel function is called. Delivery is at-least-once.
	SubscribeTransfers(handler func(TransferEvent)) (cancel func(), err error)

	// AwaitFinalization blocks until txHash is in a finalized block.
	AwaitFinalization(ctx context.Context, txHash string) error

	// Transfer sends tokens to an EVM address and returns the tx hash.
	Transfer(ctx context.Context, to string, amount *big.Int, memo string) (string, error)
}

// TonomyToken is the token contract on the Tonomy chain.
type TonomyToken interface {
	// BridgeIssue mints asset to account, recording memo for audit.
	BridgeIssue(ctx context.Context, account, asset, memo string) (string, error)

	// BridgeRetire burns asset from the bridge pool.
	BridgeRetire(ctx context.Context, asset, memo string) (string, error)

	// Transfer moves asset between two accounts.
	Transfer(ctx context.Context, from, to, asset, memo string) (string, error)

	// AwaitIrreversibility blocks until txID is irreversible.
	AwaitIrreversibility(ctx context.Context, txID string) error
}

// MsigProposer routes a destination-chain transfer through a
// multi-signature wallet instead of submitting it directly. Co-signing is
// asynchronous; the returned id identifies the pending proposal.
type MsigProposer interface {
	ProposeTransfer(ctx context.Context, to string, amount *big.Int, memo string) (string, error)
}
