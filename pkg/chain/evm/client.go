/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package evm talks JSON-RPC to the EVM chain hosting the bridged token.
// Transaction signing is delegated to a collaborator; this client only
// builds calldata, submits raw transactions and reads chain state.
package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
)

var logger = log.New("communication/evm")

// transferTopic is keccak256("Transfer(address,address,uint256)").
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// transferSelector is the first four bytes of keccak256("transfer(address,uint256)").
const transferSelector = "a9059cbb"

// memoOffset is where appended memo bytes start in transfer calldata:
// "0x" + selector (8) + two abi words (64 each).
const memoOffset = 2 + 8 + 64 + 64

// Signer signs a prepared contract call and returns the raw transaction
// hex for eth_sendRawTransaction. Key custody stays outside this package.
type Signer func(ctx context.Context, to string, calldata []byte) (string, error)

// Config carries the client settings.
type Config struct {
	Endpoint      string
	TokenContract string

	// PollInterval paces log and finalization polling. Default 5s.
	PollInterval time.Duration
	// Confirmations is the block depth treated as final. Default 12.
	Confirmations uint64
}

// Client implements chain.EVMToken over plain JSON-RPC.
type Client struct {
	cfg    Config
	signer Signer
	http   *http.Client

	reqID uint64

	subMu   sync.Mutex
	subStop chan struct{}
	subWG   sync.WaitGroup
}

// New returns an EVM client.
func New(cfg Config, signer Signer) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	if cfg.Confirmations == 0 {
		cfg.Confirmations = 12
	}

	return &Client{
		cfg:    cfg,
		signer: signer,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.reqID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, method)
	}

	defer resp.Body.Close() //nolint:errcheck

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, method)
	}

	if rpcResp.Error != nil {
		return errors.Wrap(rpcResp.Error, method)
	}

	if result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}

	return nil
}

func (c *Client) blockNumber(ctx context.Context) (uint64, error) {
	var head string
	if err := c.call(ctx, "eth_blockNumber", nil, &head); err != nil {
		return 0, err
	}

	return parseHexUint(head)
}

type logEntry struct {
	TxHash string   `json:"transactionHash"`
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}

// SubscribeTransfers polls eth_getLogs for the token's Transfer events
// and delivers each to handler. Polling from the last seen block makes
// delivery at-least-once; the consumer deduplicates by tx hash.
func (c *Client) SubscribeTransfers(handler func(chain.TransferEvent)) (func(), error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.subStop != nil {
		return nil, errors.New("already subscribed")
	}

	ctx := context.Background()

	from, err := c.blockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initial block number")
	}

	stop := make(chan struct{})
	c.subStop = stop

	c.subWG.Add(1)

	go c.pollLoop(from+1, stop, handler)

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()

		if c.subStop != nil {
			close(c.subStop)
			c.subStop = nil
		}

		c.subWG.Wait()
	}, nil
}

func (c *Client) pollLoop(from uint64, stop chan struct{}, handler func(chain.TransferEvent)) {
	defer c.subWG.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		next, err := c.pollOnce(context.Background(), from, handler)
		if err != nil {
			logger.Errorf("transfer log poll from block %d: %v", from, err)

			continue
		}

		from = next
	}
}

func (c *Client) pollOnce(ctx context.Context, from uint64, handler func(chain.TransferEvent)) (uint64, error) {
	head, err := c.blockNumber(ctx)
	if err != nil {
		return from, err
	}

	if head < from {
		return from, nil
	}

	var entries []logEntry

	filter := map[string]interface{}{
		"fromBlock": hexUint(from),
		"toBlock":   hexUint(head),
		"address":   c.cfg.TokenContract,
		"topics":    []string{transferTopic},
	}

	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &entries); err != nil {
		return from, err
	}

	for _, entry := range entries {
		ev, err := c.decodeTransfer(ctx, entry)
		if err != nil {
			logger.Errorf("decode transfer log %s: %v", entry.TxHash, err)

			continue
		}

		handler(ev)
	}

	return head + 1, nil
}

func (c *Client) decodeTransfer(ctx context.Context, entry logEntry) (chain.TransferEvent, error) {
	if len(entry.Topics) < 3 {
		return chain.TransferEvent{}, errors.New("transfer log missing indexed topics")
	}

	amount, ok := new(big.Int).SetString(strings.TrimPrefix(entry.Data, "0x"), 16)
	if !ok {
		return chain.TransferEvent{}, fmt.Errorf("bad transfer amount %q", entry.Data)
	}

	memo, err := c.transferMemo(ctx, entry.TxHash)
	if err != nil {
		return chain.TransferEvent{}, err
	}

	return chain.TransferEvent{
		TxHash: entry.TxHash,
		From:   topicAddress(entry.Topics[1]),
		To:     topicAddress(entry.Topics[2]),
		Amount: amount,
		Memo:   memo,
	}, nil
}

// transferMemo reads the transaction's calldata and decodes any bytes
// appended past the standard transfer(address,uint256) arguments. The
// bridge client appends the swap memo there as raw utf-8.
func (c *Client) transferMemo(ctx context.Context, txHash string) (string, error) {
	var tx struct {
		Input string `json:"input"`
	}

	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{txHash}, &tx); err != nil {
		return "", err
	}

	if len(tx.Input) <= memoOffset {
		return "", nil
	}

	raw, err := hex.DecodeString(tx.Input[memoOffset:])
	if err != nil {
		return "", fmt.Errorf("memo suffix of %s is not hex: %w", txHash, err)
	}

	return string(raw), nil
}

// AwaitFinalization blocks until txHash sits Confirmations blocks deep.
func (c *Client) AwaitFinalization(ctx context.Context, txHash string) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		mined, err := c.finalized(ctx, txHash)
		if err != nil {
			return err
		}

		if mined {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) finalized(ctx context.Context, txHash string) (bool, error) {
	var receipt *struct {
		BlockNumber string `json:"blockNumber"`
		Status      string `json:"status"`
	}

	err := chain.WithRetry(ctx, "eth_getTransactionReceipt", func() error {
		return c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt)
	})
	if err != nil {
		return false, err
	}

	if receipt == nil || receipt.BlockNumber == "" {
		return false, nil
	}

	if receipt.Status == "0x0" {
		return false, fmt.Errorf("transaction %s reverted", txHash)
	}

	mined, err := parseHexUint(receipt.BlockNumber)
	if err != nil {
		return false, err
	}

	head, err := c.blockNumber(ctx)
	if err != nil {
		return false, err
	}

	return head >= mined+c.cfg.Confirmations, nil
}

// Transfer submits a token transfer with memo appended to the calldata.
// Not retried: resubmitting a state-moving transaction is the operator's
// call, never the client's.
func (c *Client) Transfer(ctx context.Context, to string, amount *big.Int, memo string) (string, error) {
	calldata, err := transferCalldata(to, amount, memo)
	if err != nil {
		return "", err
	}

	raw, err := c.signer(ctx, c.cfg.TokenContract, calldata)
	if err != nil {
		return "", errors.Wrap(err, "sign transfer")
	}

	var txHash string
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{raw}, &txHash); err != nil {
		return "", err
	}

	return txHash, nil
}

func transferCalldata(to string, amount *big.Int, memo string) ([]byte, error) {
	addr, err := addressWord(to)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 4+32+32+len(memo))

	selector, err := hex.DecodeString(transferSelector)
	if err != nil {
		return nil, err
	}

	data = append(data, selector...)
	data = append(data, addr...)
	data = append(data, abiWord(amount)...)
	data = append(data, []byte(memo)...)

	return data, nil
}

func addressWord(address string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(address), "0x"))
	if err != nil || len(raw) != 20 {
		return nil, fmt.Errorf("bad evm address %q", address)
	}

	word := make([]byte, 32)
	copy(word[12:], raw)

	return word, nil
}

func abiWord(v *big.Int) []byte {
	word := make([]byte, 32)
	v.FillBytes(word)

	return word
}

func topicAddress(topic string) string {
	topic = strings.TrimPrefix(topic, "0x")
	if len(topic) < 40 {
		return "0x" + topic
	}

	return "0x" + topic[len(topic)-40:]
}

func parseHexUint(s string) (uint64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("bad hex quantity %q", s)
	}

	return v.Uint64(), nil
}

func hexUint(v uint64) string {
	return "0x" + new(big.Int).SetUint64(v).Text(16)
}
