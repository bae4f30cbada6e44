/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/tonomy-foundation/communication-go/pkg/chain/tonomy"
)

// httpSigner delegates transaction signing to the sidecar signing
// service. Key custody never enters this process.
type httpSigner struct {
	endpoint string
	http     *http.Client
}

func newHTTPSigner(endpoint string) *httpSigner {
	return &httpSigner{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// evm signs a prepared EVM contract call and returns the raw transaction
// hex for submission.
func (s *httpSigner) evm(ctx context.Context, to string, calldata []byte) (string, error) {
	var result struct {
		Raw string `json:"raw"`
	}

	err := s.post(ctx, "/sign/evm", map[string]interface{}{
		"to":   to,
		"data": "0x" + hex.EncodeToString(calldata),
	}, &result)
	if err != nil {
		return "", err
	}

	return result.Raw, nil
}

// tonomy signs and packs Tonomy chain actions into a send_transaction
// request body.
func (s *httpSigner) tonomy(ctx context.Context, chainID string, actions []tonomy.Action) (json.RawMessage, error) {
	var result json.RawMessage

	err := s.post(ctx, "/sign/tonomy", map[string]interface{}{
		"chainId": chainID,
		"actions": actions,
	}, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *httpSigner) post(ctx context.Context, path string, body, result interface{}) error {
	if s.endpoint == "" {
		return errors.New("signerEndpoint is not configured")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "signing service")
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

		return fmt.Errorf("signing service %s: status %d: %s", path, resp.StatusCode, payload)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
