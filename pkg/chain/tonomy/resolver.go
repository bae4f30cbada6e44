/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tonomy

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/pkg/errors"

	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

// keyPrefix marks an ed25519 key in the chain's account permissions.
const keyPrefix = "PUB_ED_"

// KeyResolver resolves envelope signing keys from on-chain account
// permissions, implementing msg.KeyResolver. The DID fragment names the
// account permission holding the key.
type KeyResolver struct {
	client *Client
}

// NewKeyResolver returns a resolver backed by client.
func NewKeyResolver(client *Client) *KeyResolver {
	return &KeyResolver{client: client}
}

type accountInfo struct {
	Permissions []struct {
		PermName     string `json:"perm_name"`
		RequiredAuth struct {
			Keys []struct {
				Key string `json:"key"`
			} `json:"keys"`
		} `json:"required_auth"`
	} `json:"permissions"`
}

// ResolveKey fetches did's account and returns the verification key of
// the permission the DID fragment names. An unknown account, permission
// or key shape resolves to msg.ErrUnresolvable.
func (r *KeyResolver) ResolveKey(ctx context.Context, did, kid string) (ed25519.PublicKey, error) {
	account, err := msg.AccountOf(did)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", msg.ErrUnresolvable, err.Error())
	}

	permission := "active"
	if i := strings.IndexByte(did, '#'); i >= 0 && i+1 < len(did) {
		permission = did[i+1:]
	}

	var info accountInfo

	err = r.client.post(ctx, "/v1/chain/get_account", map[string]interface{}{"account_name": account}, &info)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %s", msg.ErrUnresolvable, account, err.Error())
	}

	for _, perm := range info.Permissions {
		if perm.PermName != permission {
			continue
		}

		for _, k := range perm.RequiredAuth.Keys {
			pub, err := decodeKey(k.Key)
			if err != nil {
				continue
			}

			if kid == "" || msg.KeyID(pub) == kid {
				return pub, nil
			}
		}
	}

	return nil, errors.Wrapf(msg.ErrUnresolvable, "no key for %s@%s", account, permission)
}

func decodeKey(key string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return nil, fmt.Errorf("unsupported key %q", key)
	}

	raw := base58.Decode(strings.TrimPrefix(key, keyPrefix))
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key %q is not an ed25519 key", key)
	}

	return ed25519.PublicKey(raw), nil
}
