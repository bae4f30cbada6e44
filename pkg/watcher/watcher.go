/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package watcher observes bridge transfers on the EVM chain and mirrors
// them as token issuance on the Tonomy chain, exactly once per
// transaction hash.
package watcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
	"github.com/tonomy-foundation/communication-go/pkg/internal/metrics"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

var logger = log.New("communication/watcher")

// EventSwapReceive is the push channel notifying a wallet that its swap
// completed.
const EventSwapReceive = "v1/swap/receive"

const (
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = time.Hour
)

// Notifier pushes an out-of-band event to a DID's current session.
type Notifier interface {
	NotifyByIdentity(did, event string, payload interface{}) bool
}

// Config carries the watcher settings.
type Config struct {
	// BridgeAddress is the EVM address whose incoming transfers represent
	// swap intents. Transfers to any other address are ignored.
	BridgeAddress string

	// CurrencySymbol is the asset symbol minted on the Tonomy side.
	CurrencySymbol string

	// Retention bounds how long transfer records are kept.
	Retention time.Duration

	// SweepInterval is the cadence of the retention sweep.
	SweepInterval time.Duration
}

// Record tracks one observed bridge transfer.
type Record struct {
	TxHash             string
	From               string
	To                 string
	Amount             *big.Int
	SwapID             string
	DestinationAccount string
	Finalized          bool
	DateAdded          time.Time
	DateFinalized      time.Time
}

// Watcher is the cross-chain transfer watcher.
type Watcher struct {
	evm      chain.EVMToken
	token    chain.TonomyToken
	notifier Notifier
	cfg      Config
	clk      clock.Clock

	mu      sync.Mutex
	records map[string]*Record

	cancel   func()
	stopWait context.CancelFunc
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
	workers  sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock substitutes the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(w *Watcher) {
		w.clk = clk
	}
}

// New returns a Watcher. Call Start to begin observing.
func New(evm chain.EVMToken, token chain.TonomyToken, notifier Notifier, cfg Config, opts ...Option) *Watcher {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	w := &Watcher{
		evm:      evm,
		token:    token,
		notifier: notifier,
		cfg:      cfg,
		clk:      clock.New(),
		records:  make(map[string]*Record),
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start subscribes to transfer events and starts the retention sweep.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cfg.BridgeAddress == "" {
		return errors.New("bridge address is mandatory")
	}

	ctx, w.stopWait = context.WithCancel(ctx)

	cancel, err := w.evm.SubscribeTransfers(func(ev chain.TransferEvent) {
		w.handle(ctx, ev)
	})
	if err != nil {
		w.stopWait()

		return err
	}

	w.cancel = cancel

	w.wg.Add(1)

	go w.sweepLoop()

	logger.Infof("subscribed to bridge transfer events on %s", w.cfg.BridgeAddress)

	return nil
}

// Stop tears down the subscription and the sweep, cancels in-flight
// finalization waits and drains the per-transfer workers. Progress of a
// cancelled wait is lost; the transfer is picked up again on restart.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			w.cancel = nil
		}

		if w.stopWait != nil {
			w.stopWait()
		}

		close(w.stop)
		w.wg.Wait()
		w.workers.Wait()
	})
}

// handle filters and claims one transfer event, then hands it to its own
// worker goroutine. The subscription callback never blocks on a chain
// wait: finalization delay is unbounded, and a pending transaction must
// not stop later events from being observed.
func (w *Watcher) handle(ctx context.Context, ev chain.TransferEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic claiming transfer %s: %v", ev.TxHash, r)
		}
	}()

	if !strings.EqualFold(ev.To, w.cfg.BridgeAddress) {
		return
	}

	swapID, account, ok := ParseSwapMemo(ev.Memo)
	if !ok {
		// Incidental transfer to the bridge address, not a swap intent.
		logger.Infof("ignoring transfer %s to bridge without swap memo %q", ev.TxHash, ev.Memo)
		metrics.BridgeTransfers.WithLabelValues("ignored").Inc()

		return
	}

	// Claim the tx hash before any chain wait so a duplicate delivery
	// arriving mid-flight cannot double-process.
	w.mu.Lock()

	if _, exists := w.records[ev.TxHash]; exists {
		w.mu.Unlock()
		metrics.BridgeTransfers.WithLabelValues("duplicate").Inc()

		return
	}

	rec := &Record{
		TxHash:             ev.TxHash,
		From:               ev.From,
		To:                 ev.To,
		Amount:             ev.Amount,
		SwapID:             swapID,
		DestinationAccount: account,
		DateAdded:          w.clk.Now(),
	}
	w.records[ev.TxHash] = rec
	w.mu.Unlock()

	w.workers.Add(1)

	go w.process(ctx, ev, rec)
}

// process finalizes and mirrors one claimed transfer. Errors are logged
// with full context and never escape: one bad transaction must not stop
// the watcher.
func (w *Watcher) process(ctx context.Context, ev chain.TransferEvent, rec *Record) {
	defer w.workers.Done()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic processing transfer %s: %v", ev.TxHash, r)
		}
	}()

	swapID, account := rec.SwapID, rec.DestinationAccount
	asset := chain.FormatWei(ev.Amount, w.cfg.CurrencySymbol)
	did := msg.PlatformDID(account)

	logger.Debugf("transfer detected (pending): tx %s from %s to %s amount %s", ev.TxHash, ev.From, ev.To, asset)

	// No fixed timeout: chain finalization delay is unbounded.
	if err := w.evm.AwaitFinalization(ctx, ev.TxHash); err != nil {
		// Record kept so failed attempts stay visible until the sweep.
		logger.Errorf("finalization wait failed: tx %s from %s to %s amount %s: %v",
			ev.TxHash, ev.From, ev.To, asset, err)
		metrics.BridgeTransfers.WithLabelValues("error").Inc()

		return
	}

	logger.Debugf("transfer finalized: tx %s from %s to %s amount %s", ev.TxHash, ev.From, ev.To, asset)

	memo := "TONO swap to tonomy " + swapID

	if _, err := w.token.BridgeIssue(ctx, account, asset, memo); err != nil {
		logger.Errorf("bridge issue failed: tx %s account %s amount %s: %v", ev.TxHash, account, asset, err)
		metrics.BridgeTransfers.WithLabelValues("error").Inc()

		return
	}

	w.mu.Lock()
	rec.Finalized = true
	rec.DateFinalized = w.clk.Now()
	w.mu.Unlock()

	metrics.BridgeTransfers.WithLabelValues("completed").Inc()

	// The mint already happened; an offline wallet only misses the push.
	if !w.notifier.NotifyByIdentity(did, EventSwapReceive, map[string]interface{}{
		"swapId": swapID,
		"txHash": ev.TxHash,
		"asset":  asset,
		"memo":   memo,
	}) {
		logger.Debugf("swap %s completed but %s has no active session", swapID, did)
	}
}

func (w *Watcher) sweepLoop() {
	defer w.wg.Done()

	ticker := w.clk.Ticker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

// sweep drops records past the retention window regardless of state.
// Memory bound, not a correctness mechanism.
func (w *Watcher) sweep() {
	cutoff := w.clk.Now().Add(-w.cfg.Retention)

	w.mu.Lock()
	defer w.mu.Unlock()

	for txHash, rec := range w.records {
		if rec.DateAdded.Before(cutoff) {
			delete(w.records, txHash)
		}
	}
}

// Record returns a copy of the record for txHash.
func (w *Watcher) Record(txHash string) (Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.records[txHash]
	if !ok {
		return Record{}, false
	}

	return *rec, true
}

// RecordCount returns the number of retained records.
func (w *Watcher) RecordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.records)
}

// ParseSwapMemo extracts the swap id and destination account from a
// "swap:<swapId>:<destinationAccount>" memo.
func ParseSwapMemo(memo string) (swapID, account string, ok bool) {
	parts := strings.Split(memo, ":")
	if len(parts) != 3 || parts[0] != "swap" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}

	return parts[1], parts[2], true
}
