/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tonomy talks to the Tonomy chain's HTTP API. Transaction
// serialization and signing are delegated to a collaborator; this client
// builds actions, submits signed transactions and tracks irreversibility.
package tonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
)

var logger = log.New("communication/tonomy")

// Authorization is one actor@permission authorizing an action.
type Authorization struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action is one contract action of a transaction.
type Action struct {
	Account       string          `json:"account"`
	Name          string          `json:"name"`
	Authorization []Authorization `json:"authorization"`
	Data          interface{}     `json:"data"`
}

// Signer serializes, signs and packs actions into a send_transaction
// request body. ABI packing and key custody stay outside this package.
type Signer func(ctx context.Context, chainID string, actions []Action) (json.RawMessage, error)

// Config carries the client settings.
type Config struct {
	Endpoint string

	// TokenContract is the account hosting the token contract.
	TokenContract string
	// BridgeAccount holds the bridge pool and authorizes issue/retire.
	BridgeAccount string
	// Permission authorizes submitted actions. Default "active".
	Permission string

	// PollInterval paces irreversibility polling. Default 3s.
	PollInterval time.Duration
}

// Client implements chain.TonomyToken.
type Client struct {
	cfg    Config
	signer Signer
	http   *http.Client
}

// New returns a Tonomy chain client.
func New(cfg Config, signer Signer) *Client {
	if cfg.Permission == "" {
		cfg.Permission = "active"
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	return &Client{
		cfg:    cfg,
		signer: signer,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Code  int `json:"code"`
	Inner struct {
		What string `json:"what"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, path)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Inner.What != "" {
			return fmt.Errorf("%s: %s", path, apiErr.Inner.What)
		}

		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

type chainInfo struct {
	ChainID                  string `json:"chain_id"`
	HeadBlockNum             uint64 `json:"head_block_num"`
	LastIrreversibleBlockNum uint64 `json:"last_irreversible_block_num"`
}

func (c *Client) info(ctx context.Context) (*chainInfo, error) {
	var info chainInfo
	if err := c.post(ctx, "/v1/chain/get_info", map[string]interface{}{}, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *Client) auth(actor string) []Authorization {
	return []Authorization{{Actor: actor, Permission: c.cfg.Permission}}
}

// submit signs actions and sends them as one transaction.
func (c *Client) submit(ctx context.Context, actions []Action) (string, error) {
	info, err := c.info(ctx)
	if err != nil {
		return "", err
	}

	signed, err := c.signer(ctx, info.ChainID, actions)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
	}

	if err := c.post(ctx, "/v1/chain/send_transaction", signed, &result); err != nil {
		return "", err
	}

	logger.Debugf("submitted transaction %s (%d actions)", result.TransactionID, len(actions))

	return result.TransactionID, nil
}

// BridgeIssue mints asset into the bridge pool and transfers it on to
// account, in one atomic transaction.
func (c *Client) BridgeIssue(ctx context.Context, account, asset, memo string) (string, error) {
	return c.submit(ctx, []Action{
		{
			Account:       c.cfg.TokenContract,
			Name:          "issue",
			Authorization: c.auth(c.cfg.BridgeAccount),
			Data: map[string]interface{}{
				"to":       c.cfg.BridgeAccount,
				"quantity": asset,
				"memo":     memo,
			},
		},
		{
			Account:       c.cfg.TokenContract,
			Name:          "transfer",
			Authorization: c.auth(c.cfg.BridgeAccount),
			Data: map[string]interface{}{
				"from":     c.cfg.BridgeAccount,
				"to":       account,
				"quantity": asset,
				"memo":     memo,
			},
		},
	})
}

// BridgeRetire burns asset from the bridge pool.
func (c *Client) BridgeRetire(ctx context.Context, asset, memo string) (string, error) {
	return c.submit(ctx, []Action{{
		Account:       c.cfg.TokenContract,
		Name:          "retire",
		Authorization: c.auth(c.cfg.BridgeAccount),
		Data: map[string]interface{}{
			"quantity": asset,
			"memo":     memo,
		},
	}})
}

// Transfer moves asset between two accounts.
func (c *Client) Transfer(ctx context.Context, from, to, asset, memo string) (string, error) {
	return c.submit(ctx, []Action{{
		Account:       c.cfg.TokenContract,
		Name:          "transfer",
		Authorization: c.auth(from),
		Data: map[string]interface{}{
			"from":     from,
			"to":       to,
			"quantity": asset,
			"memo":     memo,
		},
	}})
}

// AwaitIrreversibility polls the transaction status until the chain
// reports it irreversible. A forked-out transaction is a hard failure.
func (c *Client) AwaitIrreversibility(ctx context.Context, txID string) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			State string `json:"state"`
		}

		err := chain.WithRetry(ctx, "get_transaction_status", func() error {
			return c.post(ctx, "/v1/chain/get_transaction_status", map[string]interface{}{"id": txID}, &status)
		})
		if err != nil {
			return err
		}

		switch status.State {
		case "IRREVERSIBLE":
			return nil
		case "FORKED_OUT":
			return fmt.Errorf("transaction %s forked out", txID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
