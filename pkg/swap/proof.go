/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package swap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
)

// ProofMessage is the exact text a wallet signs to prove it controls the
// destination EVM address for a swap requested on behalf of did.
func ProofMessage(did, address string) string {
	return "tonomy-swap:" + did + ":" + strings.ToLower(address)
}

// VerifyAddressProof checks a compact recoverable secp256k1 signature
// over ProofMessage(did, address) and confirms the recovered key derives
// address.
func VerifyAddressProof(did, address, proofHex string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(proofHex, "0x"))
	if err != nil {
		return comerr.Wrap(comerr.SignatureInvalid, err, "address proof is not hex")
	}

	hash := personalSignHash([]byte(ProofMessage(did, address)))

	pub, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return comerr.Wrap(comerr.SignatureInvalid, err, "address proof signature")
	}

	if !strings.EqualFold(deriveAddress(pub.SerializeUncompressed()), address) {
		return comerr.New(comerr.SignatureInvalid, "address proof was not signed by the destination address")
	}

	return nil
}

// personalSignHash hashes msg the way EVM wallets sign free text.
func personalSignHash(msg []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d", len(msg))
	h.Write(msg)

	return h.Sum(nil)
}

// deriveAddress derives the 0x address of an uncompressed secp256k1 key.
func deriveAddress(uncompressed []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)

	return "0x" + hex.EncodeToString(sum[12:])
}
