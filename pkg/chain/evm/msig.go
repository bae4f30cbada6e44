/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package evm

import (
	"context"
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

// submitSelector is the first four bytes of
// keccak256("submitTransaction(address,uint256,bytes)").
const submitSelector = "c6427474"

// Msig proposes destination transfers through a multi-signature wallet
// contract instead of submitting them directly. Co-signers confirm out of
// band; the returned proposal id is the submission tx hash.
type Msig struct {
	client *Client
	wallet string
}

// NewMsig returns a proposer bound to the wallet contract address.
func NewMsig(client *Client, wallet string) *Msig {
	return &Msig{client: client, wallet: wallet}
}

// ProposeTransfer submits a token transfer proposal to the wallet.
func (m *Msig) ProposeTransfer(ctx context.Context, to string, amount *big.Int, memo string) (string, error) {
	inner, err := transferCalldata(to, amount, memo)
	if err != nil {
		return "", err
	}

	calldata, err := submitCalldata(m.client.cfg.TokenContract, inner)
	if err != nil {
		return "", err
	}

	raw, err := m.client.signer(ctx, m.wallet, calldata)
	if err != nil {
		return "", errors.Wrap(err, "sign msig proposal")
	}

	var txHash string
	if err := m.client.call(ctx, "eth_sendRawTransaction", []interface{}{raw}, &txHash); err != nil {
		return "", err
	}

	return txHash, nil
}

// submitCalldata abi-encodes submitTransaction(destination, 0, data).
func submitCalldata(destination string, data []byte) ([]byte, error) {
	dest, err := addressWord(destination)
	if err != nil {
		return nil, err
	}

	selector, err := hex.DecodeString(submitSelector)
	if err != nil {
		return nil, err
	}

	padded := len(data)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}

	out := make([]byte, 0, 4+32*4+padded)
	out = append(out, selector...)
	out = append(out, dest...)
	out = append(out, abiWord(big.NewInt(0))...)
	// offset of the dynamic bytes argument, from the start of the args
	out = append(out, abiWord(big.NewInt(96))...)
	out = append(out, abiWord(big.NewInt(int64(len(data))))...)
	out = append(out, data...)
	out = append(out, make([]byte, padded-len(data))...)

	return out, nil
}
