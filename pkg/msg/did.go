/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package msg

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"
)

const didPrefix = "did:antelope:tonomy:"

// ed25519 multicodec prefix, varint encoded.
var ed25519Codec = []byte{0xed, 0x01}

// PlatformDID builds the DID a platform account is addressable under when
// acting through the apps platform.
func PlatformDID(account string) string {
	return didPrefix + account + "#apps"
}

// AccountOf extracts the chain account from a platform DID.
func AccountOf(did string) (string, error) {
	name := did
	if i := strings.IndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}

	if !strings.HasPrefix(name, didPrefix) {
		return "", fmt.Errorf("not a platform DID: %s", did)
	}

	account := strings.TrimPrefix(name, didPrefix)
	if account == "" {
		return "", fmt.Errorf("platform DID has no account: %s", did)
	}

	return account, nil
}

// Fingerprint returns the multibase fingerprint of an ed25519 verification
// key, did:key style.
func Fingerprint(pub ed25519.PublicKey) string {
	fp, err := multibase.Encode(multibase.Base58BTC, append(ed25519Codec, pub...))
	if err != nil {
		// Base58BTC is a registered encoding; Encode only fails on unknown ones.
		panic(err)
	}

	return fp
}

// KeyID returns the short key id used in envelope headers for pub.
func KeyID(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}
